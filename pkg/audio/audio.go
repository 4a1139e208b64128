// Package audio turns the raw PCM payloads returned by speech synthesis
// backends into self-contained WAVE files.
//
// The pipeline has two stages that must agree on the same Format:
//
//	buf, err := audio.DecodeBase64(payload, audio.DefaultFormat)
//	blob, err := audio.EncodeWAV(buf)
//
// Transcode runs both stages with a single Format so the sample rate and
// channel count written into the header always match the decoded stream.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultSampleRate is the rate the synthesis service emits.
	DefaultSampleRate = 24000
	DefaultChannels   = 1

	BytesPerSample = 2
	BitsPerSample  = 16
	HeaderSize     = 44

	ContentTypeWAV  = "audio/wav"
	DefaultFilename = "audiobook.wav"

	// pcmScale is used both to normalize and to quantize, so a decoded
	// stream re-encodes to identical samples.
	pcmScale = 32768.0
)

var (
	ErrDecode         = errors.New("audio: malformed base64 payload")
	ErrInvalidFormat  = errors.New("audio: invalid format")
	ErrFormatMismatch = errors.New("audio: buffer does not match its format")
	ErrInvalidHeader  = errors.New("audio: invalid wave header")
)

// DefaultFormat is mono 16-bit PCM at 24 kHz.
var DefaultFormat = Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels}

// Format describes a linear 16-bit PCM stream.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidFormat, f.Channels)
	}
	// Block align and byte rate are 16- and 32-bit header fields.
	if f.Channels*BytesPerSample > math.MaxUint16 {
		return fmt.Errorf("%w: too many channels: %d", ErrInvalidFormat, f.Channels)
	}
	if uint64(f.SampleRate)*uint64(f.Channels)*BytesPerSample > math.MaxUint32 {
		return fmt.Errorf("%w: byte rate overflows for %d Hz x %d channels", ErrInvalidFormat, f.SampleRate, f.Channels)
	}
	return nil
}

// ByteRate is the number of bytes per second of encoded audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// BlockAlign is the size in bytes of one frame.
func (f Format) BlockAlign() int {
	return f.Channels * BytesPerSample
}

// Buffer is decoded audio: one slice of normalized samples per channel.
type Buffer struct {
	Format Format
	Data   [][]float32
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Blob is an immutable encoded audio file.
type Blob struct {
	Data        []byte
	ContentType string
}

func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Transcode decodes a base64 PCM payload and wraps it in a WAVE container
// using the same format for both stages.
func Transcode(payload string, f Format) (*Blob, error) {
	buf, err := DecodeBase64(payload, f)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(buf)
}
