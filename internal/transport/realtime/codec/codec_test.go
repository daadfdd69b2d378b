package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeAudioRoundTrip(t *testing.T) {
	buffers := [][]byte{
		nil,
		{0x00},
		{0x01, 0x02, 0x03},
		{0xff, 0xfe, 0x00, 0x80, 0x7f},
		bytes.Repeat([]byte{0xaa, 0x55}, 513),
	}
	for _, buf := range buffers {
		got, err := DecodeAudio(EncodeAudio(buf))
		if err != nil {
			t.Fatalf("DecodeAudio(EncodeAudio(%v)) returned error: %v", buf, err)
		}
		if !bytes.Equal(got, buf) {
			t.Fatalf("round trip=%v, want %v", got, buf)
		}
	}
}

func TestDecodeAudioInvalid(t *testing.T) {
	_, err := DecodeAudio("not base64!!")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("DecodeAudio error=%v, want ErrMalformedPayload", err)
	}
}

func TestToSamplesOddLength(t *testing.T) {
	for _, n := range []int{1, 3, 7, 1025} {
		_, err := ToSamples(make([]byte, n))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("ToSamples(len=%d) error=%v, want ErrMalformedPayload", n, err)
		}
	}
}

func TestToSamplesLittleEndian(t *testing.T) {
	samples, err := ToSamples([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	if err != nil {
		t.Fatalf("ToSamples returned error: %v", err)
	}
	want := []int16{1, -1, -32768}
	if len(samples) != len(want) {
		t.Fatalf("len(samples)=%d, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("samples[%d]=%d, want %d", i, samples[i], want[i])
		}
	}
}

func TestToSamplesPreservesCount(t *testing.T) {
	for _, n := range []int{0, 2, 4, 2048} {
		samples, err := ToSamples(make([]byte, n))
		if err != nil {
			t.Fatalf("ToSamples(len=%d) returned error: %v", n, err)
		}
		if len(samples) != n/2 {
			t.Fatalf("len(samples)=%d, want %d", len(samples), n/2)
		}
	}
}

func TestDecodeSamples(t *testing.T) {
	samples, err := DecodeSamples(EncodeAudio([]byte{0x10, 0x00, 0x00, 0x01}))
	if err != nil {
		t.Fatalf("DecodeSamples returned error: %v", err)
	}
	if len(samples) != 2 || samples[0] != 16 || samples[1] != 256 {
		t.Fatalf("DecodeSamples=%v, want [16 256]", samples)
	}
}
