package tts

import "context"

// Noop is the synthesizer used where no speech backend is available.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Supported() bool { return false }

func (Noop) Synthesize(context.Context, string) ([]byte, error) { return nil, nil }
