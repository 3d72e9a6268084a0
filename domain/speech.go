package domain

import "context"

// Recognizer abstracts speech-to-text. The session controller depends only
// on this port; environments without a speech backend plug in a no-op
// adapter.
type Recognizer interface {
	// Supported reports whether transcription can actually run here.
	Supported() bool
	// Start begins listening. Finalized transcripts are delivered through
	// onTranscript; they are inserted into the input surface, never
	// auto-submitted. Start returns once listening is established.
	Start(ctx context.Context, onTranscript func(text string)) error
	// Feed delivers a chunk of captured audio to the recognizer.
	Feed(chunk []byte) error
	// Stop ends the current listening session. Safe to call when idle.
	Stop() error
}

// Synthesizer abstracts text-to-speech. Speaking is fire and forget: a
// synthesis failure is logged and never blocks the chat flow.
type Synthesizer interface {
	Supported() bool
	// Synthesize renders text to audio bytes (encoding is the adapter's
	// concern).
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
