package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// PCM is a block of interleaved 16-bit samples.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ReadWAV parses a 16-bit PCM RIFF/WAVE stream.
func ReadWAV(r io.Reader) (PCM, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PCM{}, err
	}
	return DecodeWAV(data)
}

// DecodeWAV parses a 16-bit PCM RIFF/WAVE buffer.
func DecodeWAV(frame []byte) (PCM, error) {
	if len(frame) < 12 || string(frame[0:4]) != "RIFF" || string(frame[8:12]) != "WAVE" {
		return PCM{}, errors.New("invalid wav header")
	}

	sampleRate := 16000
	channels := 1
	bitsPerSample := 16
	format := uint16(1)

	offset := 12
	dataOffset := -1
	dataSize := 0
	for offset+8 <= len(frame) {
		chunkID := string(frame[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(frame[offset+4 : offset+8]))
		offset += 8
		if chunkSize < 0 || offset+chunkSize > len(frame) {
			chunkSize = len(frame) - offset
		}

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 {
				format = binary.LittleEndian.Uint16(frame[offset : offset+2])
				channels = int(binary.LittleEndian.Uint16(frame[offset+2 : offset+4]))
				sampleRate = int(binary.LittleEndian.Uint32(frame[offset+4 : offset+8]))
				bitsPerSample = int(binary.LittleEndian.Uint16(frame[offset+14 : offset+16]))
			}
		case "data":
			dataOffset = offset
			dataSize = chunkSize
		}

		offset += chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if dataOffset < 0 {
		return PCM{}, errors.New("wav data chunk not found")
	}
	if format != 1 || bitsPerSample != 16 {
		return PCM{}, fmt.Errorf("unsupported wav encoding: format %d, %d bits", format, bitsPerSample)
	}
	if channels <= 0 || sampleRate <= 0 {
		return PCM{}, errors.New("invalid wav fmt chunk")
	}
	samples := BytesToInt16SliceInto(nil, frame[dataOffset:dataOffset+dataSize])
	return PCM{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// WAVWriter streams PCM16 samples into a WAV file and patches the header
// sizes on Close.
type WAVWriter struct {
	w          io.WriteSeeker
	sampleRate int
	channels   int
	dataBytes  int
	scratch    []byte
}

// NewWAVWriter writes a provisional header to w.
func NewWAVWriter(w io.WriteSeeker, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.New("wav writer: invalid format")
	}
	ww := &WAVWriter{w: w, sampleRate: sampleRate, channels: channels}
	if _, err := w.Write(ww.header()); err != nil {
		return nil, err
	}
	return ww, nil
}

// Write appends samples to the data chunk.
func (w *WAVWriter) Write(samples []int16) error {
	w.scratch = Int16SliceToBytesInto(w.scratch, samples)
	n, err := w.w.Write(w.scratch)
	w.dataBytes += n
	return err
}

// DataBytes returns the size of the data chunk written so far.
func (w *WAVWriter) DataBytes() int {
	return w.dataBytes
}

// Close rewrites the header with the final sizes. It does not close the
// underlying writer.
func (w *WAVWriter) Close() error {
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.w.Write(w.header()); err != nil {
		return err
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}

func (w *WAVWriter) header() []byte {
	head := make([]byte, wavHeaderSize)
	blockAlign := w.channels * 2
	copy(head[0:4], "RIFF")
	binary.LittleEndian.PutUint32(head[4:8], uint32(36+w.dataBytes))
	copy(head[8:12], "WAVE")
	copy(head[12:16], "fmt ")
	binary.LittleEndian.PutUint32(head[16:20], 16)
	binary.LittleEndian.PutUint16(head[20:22], 1)
	binary.LittleEndian.PutUint16(head[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(head[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(head[28:32], uint32(w.sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(head[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(head[34:36], 16)
	copy(head[36:40], "data")
	binary.LittleEndian.PutUint32(head[40:44], uint32(w.dataBytes))
	return head
}
