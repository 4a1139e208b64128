package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func sineBuffer(frames int) *Buffer {
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/DefaultSampleRate))
	}
	return &Buffer{Format: DefaultFormat, Data: [][]float32{samples}}
}

func TestEncodeWAVHeader(t *testing.T) {
	blob, err := EncodeWAV(sineBuffer(1000))
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	if blob.ContentType != "audio/wav" {
		t.Errorf("expected content type audio/wav, got %q", blob.ContentType)
	}
	if len(blob.Data) != HeaderSize+2000 {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+2000, len(blob.Data))
	}

	d := blob.Data
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", binary.LittleEndian.Uint32(d[4:8]), 36 + 2000},
		{"subchunk1 size", binary.LittleEndian.Uint32(d[16:20]), 16},
		{"audio format", uint32(binary.LittleEndian.Uint16(d[20:22])), 1},
		{"channels", uint32(binary.LittleEndian.Uint16(d[22:24])), 1},
		{"sample rate", binary.LittleEndian.Uint32(d[24:28]), 24000},
		{"byte rate", binary.LittleEndian.Uint32(d[28:32]), 48000},
		{"block align", uint32(binary.LittleEndian.Uint16(d[32:34])), 2},
		{"bits per sample", uint32(binary.LittleEndian.Uint16(d[34:36])), 16},
		{"data size", binary.LittleEndian.Uint32(d[40:44]), 2000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	for _, id := range []struct {
		off  int
		want string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if got := string(d[id.off : id.off+4]); got != id.want {
			t.Errorf("offset %d: expected %q, got %q", id.off, id.want, got)
		}
	}
}

func TestEncodeWAVEmptyBuffer(t *testing.T) {
	buf, err := DecodeBase64("", DefaultFormat)
	if err != nil {
		t.Fatalf("DecodeBase64() error = %v", err)
	}
	if buf.Frames() != 0 {
		t.Fatalf("expected 0 frames, got %d", buf.Frames())
	}

	blob, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if len(blob.Data) != HeaderSize {
		t.Fatalf("expected header-only file of %d bytes, got %d", HeaderSize, len(blob.Data))
	}

	h, err := ReadHeader(blob.Data)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.DataSize != 0 || h.ChunkSize != 36 {
		t.Errorf("expected data size 0 and chunk size 36, got %d and %d", h.DataSize, h.ChunkSize)
	}
}

func TestEncodeWAVClamping(t *testing.T) {
	buf := &Buffer{
		Format: DefaultFormat,
		Data:   [][]float32{{2.0, -2.0, 1.0, -1.0, 0, float32(math.NaN())}},
	}

	blob, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	want := []int16{32767, -32768, 32767, -32768, 0, 0}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(blob.Data[HeaderSize+i*2:]))
		if got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestRoundTripSamples(t *testing.T) {
	original := []int16{0, 1, -1, 100, -100, 12345, -12345, 32767, -32768}
	pcm := make([]byte, len(original)*2)
	for i, s := range original {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	blob, err := Transcode(base64.StdEncoding.EncodeToString(pcm), DefaultFormat)
	if err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}

	again, err := DecodePCM(blob.Data[HeaderSize:], DefaultFormat)
	if err != nil {
		t.Fatalf("DecodePCM() error = %v", err)
	}
	for i, s := range original {
		got := int(math.Round(float64(again.Data[0][i]) * 32768))
		if diff := got - int(s); diff < -1 || diff > 1 {
			t.Errorf("sample %d: expected %d (±1), got %d", i, s, got)
		}
	}
	if !bytes.Equal(blob.Data[HeaderSize:], pcm) {
		t.Error("expected the data section to reproduce the input stream exactly")
	}
}

func TestEncodeWAVStereoInterleave(t *testing.T) {
	buf := &Buffer{
		Format: Format{SampleRate: 8000, Channels: 2},
		Data: [][]float32{
			{0.5, 0.25},
			{-0.5, -0.25},
		},
	}

	blob, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	h, err := ReadHeader(blob.Data)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.NumChannels != 2 || h.BlockAlign != 4 || h.ByteRate != 32000 || h.DataSize != 8 {
		t.Errorf("unexpected header: %+v", h)
	}

	want := []int16{16384, -16384, 8192, -8192}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(blob.Data[HeaderSize+i*2:]))
		if got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestEncodeWAVFormatMismatch(t *testing.T) {
	tests := []struct {
		name string
		buf  *Buffer
	}{
		{"nil buffer", nil},
		{"channel count", &Buffer{Format: Format{SampleRate: 24000, Channels: 2}, Data: [][]float32{{0}}}},
		{"ragged channels", &Buffer{Format: Format{SampleRate: 24000, Channels: 2}, Data: [][]float32{{0, 0}, {0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.buf); !errors.Is(err, ErrFormatMismatch) {
				t.Errorf("expected ErrFormatMismatch, got %v", err)
			}
		})
	}
}

func TestEncodeWAVDecodesWithGoAudio(t *testing.T) {
	blob, err := EncodeWAV(sineBuffer(2400))
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(blob.Data))
	if !dec.IsValidFile() {
		t.Fatal("go-audio rejected the encoded file")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}

	if dec.SampleRate != 24000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("unexpected format: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(pcm.Data) != 2400 {
		t.Fatalf("expected 2400 samples, got %d", len(pcm.Data))
	}
	for i, s := range pcm.Data {
		want := int(binary.LittleEndian.Uint16(blob.Data[HeaderSize+i*2:]))
		if int16(want) != int16(s) {
			t.Fatalf("sample %d: expected %d, got %d", i, int16(want), s)
		}
	}
}

func TestReadHeaderParsesGoAudioOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	enc := wav.NewEncoder(f, 16000, 16, 2, 1)
	in := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 16000},
		Data:           []int{0, 16384, -32768, 32767, 100, -100},
		SourceBitDepth: 16,
	}
	if err := enc.Write(in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	h, err := ReadHeader(data)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.SampleRate != 16000 || h.NumChannels != 2 || h.DataSize != 12 || h.Frames() != 3 {
		t.Fatalf("unexpected header %+v", h)
	}

	buf, err := DecodePCM(data[HeaderSize:], Format{SampleRate: 16000, Channels: 2})
	if err != nil {
		t.Fatalf("DecodePCM() error = %v", err)
	}
	wantLeft := []float32{0, -1, 100.0 / 32768}
	wantRight := []float32{0.5, 32767.0 / 32768, -100.0 / 32768}
	for i := range wantLeft {
		if buf.Data[0][i] != wantLeft[i] || buf.Data[1][i] != wantRight[i] {
			t.Fatalf("frame %d: got (%v, %v), want (%v, %v)", i, buf.Data[0][i], buf.Data[1][i], wantLeft[i], wantRight[i])
		}
	}
}

func TestReadHeaderRejectsGarbage(t *testing.T) {
	if _, err := ReadHeader([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("short input: expected ErrInvalidHeader, got %v", err)
	}

	fake := make([]byte, 64)
	copy(fake, "FAKE")
	if _, err := ReadHeader(fake); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("bad RIFF id: expected ErrInvalidHeader, got %v", err)
	}
}

func TestHeaderDuration(t *testing.T) {
	blob, err := EncodeWAV(sineBuffer(DefaultSampleRate / 2))
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	h, err := ReadHeader(blob.Data)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.Frames() != 12000 {
		t.Errorf("expected 12000 frames, got %d", h.Frames())
	}
	if got := h.Duration().Seconds(); got != 0.5 {
		t.Errorf("expected 0.5s, got %vs", got)
	}
}
