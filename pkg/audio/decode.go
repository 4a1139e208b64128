package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
)

// DecodeBase64 decodes a base64 string of 16-bit little-endian PCM.
// Padding is optional, but when present it must be exact. Line breaks are
// ignored.
func DecodeBase64(payload string, f Format) (*Buffer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	enc := base64.RawStdEncoding
	if strings.HasSuffix(strings.TrimRight(payload, "\r\n"), "=") {
		enc = base64.StdEncoding
	}
	raw, err := enc.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return DecodePCM(raw, f)
}

// DecodePCM interprets data as interleaved 16-bit little-endian samples.
// A trailing odd byte, and a trailing incomplete frame, are dropped.
func DecodePCM(data []byte, f Format) (*Buffer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	numSamples := len(data) / BytesPerSample
	frames := numSamples / f.Channels

	channels := make([][]float32, f.Channels)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < f.Channels; c++ {
			off := (i*f.Channels + c) * BytesPerSample
			sample := int16(binary.LittleEndian.Uint16(data[off:]))
			channels[c][i] = float32(sample) / pcmScale
		}
	}

	return &Buffer{Format: f, Data: channels}, nil
}
