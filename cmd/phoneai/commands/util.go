package commands

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/saker-ai/phoneai-client/internal/protocol"
	"github.com/saker-ai/phoneai-client/pkg/audio"
	"github.com/saker-ai/phoneai-client/pkg/realtime"
)

// transcript prints agent turns and audio activity as they arrive.
type transcript struct {
	mu         sync.Mutex
	out        io.Writer
	sampleRate int
	printed    int
	samples    int
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out}
}

func (t *transcript) setSampleRate(rate int) {
	t.mu.Lock()
	t.sampleRate = rate
	t.mu.Unlock()
}

func (t *transcript) callbacks() realtime.Callbacks {
	return realtime.Callbacks{
		OnAudioChunk:      t.onAudioChunk,
		OnAudioStreamDone: t.onAudioDone,
		OnChange:          t.onChange,
		OnWarning:         t.onWarning,
	}
}

func (t *transcript) onChange(s realtime.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(s.History) < t.printed {
		// history was reset or rewritten by the server
		t.printed = 0
	}
	for _, turn := range s.History[t.printed:] {
		if turn.Role == protocol.RoleUser {
			continue
		}
		if text := turn.Text(); text != "" {
			fmt.Fprintf(t.out, "%s> %s\n", speaker(turn, s.ActiveAgent), text)
		}
	}
	t.printed = len(s.History)
}

func (t *transcript) onAudioChunk(samples []int16) {
	t.mu.Lock()
	t.samples += len(samples)
	t.mu.Unlock()
}

func (t *transcript) onAudioDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.samples > 0 && t.sampleRate > 0 {
		fmt.Fprintf(t.out, "[agent audio %.1fs]\n", float64(t.samples)/float64(t.sampleRate))
	}
	t.samples = 0
}

func (t *transcript) onWarning(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "! %v\n", err)
}

func speaker(turn protocol.Turn, activeAgent string) string {
	if turn.Role == protocol.RoleAgent && activeAgent != "" {
		return activeAgent
	}
	if turn.Role != "" {
		return string(turn.Role)
	}
	return turn.Kind
}

type turnView struct {
	Role string `yaml:"role,omitempty"`
	Type string `yaml:"type,omitempty"`
	Text string `yaml:"text,omitempty"`
}

func writeHistory(out io.Writer, history []protocol.Turn) error {
	views := make([]turnView, 0, len(history))
	for _, turn := range history {
		views = append(views, turnView{Role: string(turn.Role), Type: turn.Kind, Text: turn.Text()})
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(views); err != nil {
		return err
	}
	return enc.Close()
}

// loadAudioFile reads a 16-bit WAV file as mono PCM16 at sampleRate.
func loadAudioFile(path string, sampleRate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	pcm, err := audio.ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	samples := audio.DownmixToMono(pcm.Samples, pcm.Channels)
	if pcm.SampleRate == sampleRate {
		return samples, nil
	}
	return audio.Resample(samples, pcm.SampleRate, sampleRate)
}
