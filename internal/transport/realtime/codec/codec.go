package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedPayload reports an audio payload that cannot be decoded.
var ErrMalformedPayload = errors.New("realtime: malformed audio payload")

// EncodeAudio encodes a raw PCM byte buffer for the wire.
func EncodeAudio(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeAudio reverses EncodeAudio.
func DecodeAudio(text string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}

// ToSamples reinterprets payload as little-endian 16-bit PCM samples.
func ToSamples(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrMalformedPayload, len(payload))
	}
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return samples, nil
}

// DecodeSamples decodes a wire audio delta straight into PCM samples.
func DecodeSamples(text string) ([]int16, error) {
	payload, err := DecodeAudio(text)
	if err != nil {
		return nil, err
	}
	return ToSamples(payload)
}
