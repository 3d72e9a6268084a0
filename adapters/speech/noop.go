package speech

import "context"

// Noop is the recognizer used where no speech backend is available. The
// session controller only ever sees the domain port, so swapping this in
// disables voice input without touching the chat flow.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Supported() bool { return false }

func (Noop) Start(context.Context, func(string)) error { return nil }

func (Noop) Feed([]byte) error { return nil }

func (Noop) Stop() error { return nil }
