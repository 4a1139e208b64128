package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownVoice = errors.New("unknown voice")

// Voice is a prebuilt voice name understood by the synthesis service.
type Voice string

const (
	VoiceKore   Voice = "Kore"
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceFenrir Voice = "Fenrir"
	VoiceZephyr Voice = "Zephyr"
)

type VoiceOption struct {
	ID          Voice  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var Voices = []VoiceOption{
	{ID: VoiceKore, Name: "Kore", Description: "Bright and energetic"},
	{ID: VoicePuck, Name: "Puck", Description: "Warm and friendly"},
	{ID: VoiceCharon, Name: "Charon", Description: "Deep and authoritative"},
	{ID: VoiceFenrir, Name: "Fenrir", Description: "Mysterious and calm"},
	{ID: VoiceZephyr, Name: "Zephyr", Description: "Smooth and clear"},
}

// ParseVoice matches s against the catalog, ignoring case.
func ParseVoice(s string) (Voice, error) {
	for _, v := range Voices {
		if strings.EqualFold(string(v.ID), s) {
			return v.ID, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownVoice, s)
}
