package storage

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saker-ai/phoneai-client/pkg/audio"
)

// RecordingInfo describes one recorded agent audio stream.
type RecordingInfo struct {
	Name      string `json:"name" yaml:"name"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

const recordingExt = ".wav"

// Recorder writes agent audio streams to WAV files, one file per stream.
type Recorder struct {
	dir        string
	sampleRate int
	channels   int
	logger     *zap.Logger

	mu     sync.Mutex
	file   *os.File
	writer *audio.WAVWriter
	name   string
}

// NewRecorder executes the newRecorder function.
func NewRecorder(dir string, sampleRate, channels int, logger *zap.Logger) (*Recorder, error) {
	if dir == "" {
		return nil, errors.New("recordings dir is empty")
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.New("invalid recording format")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{dir: dir, sampleRate: sampleRate, channels: channels, logger: logger}, nil
}

// Append writes samples to the current stream, starting a new file if none is open.
func (r *Recorder) Append(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		if err := r.startLocked(); err != nil {
			return err
		}
	}
	return r.writer.Write(samples)
}

// Finish completes the current stream and returns its name. It returns an
// empty name when no stream is open.
func (r *Recorder) Finish() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked()
}

// Close completes any open stream.
func (r *Recorder) Close() error {
	_, err := r.Finish()
	return err
}

func (r *Recorder) startLocked() error {
	name := time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "") + recordingExt
	file, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}
	writer, err := audio.NewWAVWriter(file, r.sampleRate, r.channels)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return err
	}
	r.file = file
	r.writer = writer
	r.name = name
	r.logger.Debug("recording started", zap.String("name", name))
	return nil
}

func (r *Recorder) finishLocked() (string, error) {
	if r.writer == nil {
		return "", nil
	}
	name := r.name
	dataBytes := r.writer.DataBytes()
	err := errors.Join(r.writer.Close(), r.file.Close())
	r.file = nil
	r.writer = nil
	r.name = ""
	if err != nil {
		r.logger.Warn("recording finish failed", zap.String("name", name), zap.Error(err))
		return name, err
	}
	r.logger.Info("recording saved", zap.String("name", name), zap.Int("bytes", dataBytes))
	return name, nil
}

// ListRecordings returns the recordings in dir, newest first.
func ListRecordings(dir string) ([]RecordingInfo, error) {
	list := []RecordingInfo{}
	if dir == "" {
		return list, errors.New("recordings dir is empty")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return list, nil
		}
		return list, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordingExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, RecordingInfo{
			Name:      entry.Name(),
			Bytes:     info.Size(),
			Timestamp: info.ModTime().Format(time.RFC3339),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name > list[j].Name
	})

	return list, nil
}

// RecordingPath resolves name inside dir, rejecting anything that is not a
// plain recording file name.
func RecordingPath(dir string, name string) (string, error) {
	if dir == "" {
		return "", errors.New("recordings dir is empty")
	}
	if !safeNamePattern.MatchString(name) || !strings.HasSuffix(name, recordingExt) || strings.HasPrefix(name, ".") {
		return "", errors.New("invalid recording name")
	}
	return filepath.Join(dir, name), nil
}
