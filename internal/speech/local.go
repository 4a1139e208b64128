package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nikhilbhutani/audiobook/pkg/audio"
)

// LocalConfig holds configuration for the local Piper backend.
type LocalConfig struct {
	PiperBinPath string // default: "piper"
	ModelPath    string // required: path to the .onnx voice model
	SampleRate   int    // rate of the model, default 22050
}

// Local synthesizes speech with the Piper binary via subprocess.
// The voice is fixed by the model file; request voices are ignored.
type Local struct {
	cfg LocalConfig
}

func NewLocal(cfg LocalConfig) *Local {
	if cfg.PiperBinPath == "" {
		cfg.PiperBinPath = "piper"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	return &Local{cfg: cfg}
}

func (l *Local) Name() string { return "local-piper" }

// Synthesize pipes text into Piper via stdin and reads raw PCM from stdout.
func (l *Local) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if l.cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper model path is required (set SPEECH_PIPER_MODEL)")
	}

	cmd := exec.CommandContext(ctx, l.cfg.PiperBinPath, "--model", l.cfg.ModelPath, "--output-raw")
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper failed: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, ErrNoAudio
	}

	return &Result{
		AudioBase64: base64.StdEncoding.EncodeToString(stdout.Bytes()),
		Format:      audio.Format{SampleRate: l.cfg.SampleRate, Channels: 1},
	}, nil
}
