package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Header is the canonical 44-byte RIFF/WAVE header for integer PCM.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + DataSize
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	DataSize      uint32
}

func newHeader(f Format, dataSize int) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// Frames is the number of sample frames described by the header.
func (h *Header) Frames() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize) / int(h.BlockAlign)
}

func (h *Header) Duration() time.Duration {
	if h.SampleRate == 0 {
		return 0
	}
	return time.Duration(h.Frames()) * time.Second / time.Duration(h.SampleRate)
}

// EncodeWAV serializes b into a 16-bit PCM WAVE file. Samples outside
// [-1.0, 1.0) are clamped.
func EncodeWAV(b *Buffer) (*Blob, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil buffer", ErrFormatMismatch)
	}
	if err := b.Format.Validate(); err != nil {
		return nil, err
	}
	if len(b.Data) != b.Format.Channels {
		return nil, fmt.Errorf("%w: format declares %d channels, buffer has %d",
			ErrFormatMismatch, b.Format.Channels, len(b.Data))
	}

	frames := b.Frames()
	for c, ch := range b.Data {
		if len(ch) != frames {
			return nil, fmt.Errorf("%w: channel %d has %d frames, want %d", ErrFormatMismatch, c, len(ch), frames)
		}
	}

	dataSize := frames * b.Format.BlockAlign()
	if uint64(dataSize)+36 > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes of audio exceed the wave size limit", ErrInvalidFormat, dataSize)
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+dataSize))
	if err := binary.Write(buf, binary.LittleEndian, newHeader(b.Format, dataSize)); err != nil {
		return nil, fmt.Errorf("write wave header: %w", err)
	}

	data := make([]byte, dataSize)
	off := 0
	for i := 0; i < frames; i++ {
		for _, ch := range b.Data {
			binary.LittleEndian.PutUint16(data[off:], uint16(quantize(ch[i])))
			off += BytesPerSample
		}
	}
	buf.Write(data)

	return &Blob{Data: buf.Bytes(), ContentType: ContentTypeWAV}, nil
}

func quantize(v float32) int16 {
	if v != v {
		return 0
	}
	s := math.Round(float64(v) * pcmScale)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int16(s)
}

// ReadHeader parses the header of a canonical PCM WAVE file.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(data))
	}

	var h Header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return nil, fmt.Errorf("%w: missing RIFF chunk", ErrInvalidHeader)
	case string(h.Format[:]) != "WAVE":
		return nil, fmt.Errorf("%w: missing WAVE format", ErrInvalidHeader)
	case string(h.Subchunk1ID[:]) != "fmt ":
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidHeader)
	case string(h.Subchunk2ID[:]) != "data":
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidHeader)
	case h.AudioFormat != 1:
		return nil, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidHeader, h.AudioFormat)
	case h.BitsPerSample != BitsPerSample:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidHeader, h.BitsPerSample)
	}

	return &h, nil
}
