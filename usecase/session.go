package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// TranscriptTopic is where sessions publish their transcript events. The
// routing key is the session id.
const TranscriptTopic = "transcript.events"

// State is the session controller's current mode.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting-reply"
	StateListening     State = "listening"
	StateSpeaking      State = "speaking"
)

// ErrBusy rejects a submit while a reply is already in flight. At most one
// request is outstanding per session.
var ErrBusy = errors.New("a reply is already in flight")

// ErrVoiceUnsupported rejects voice operations when no speech backend is
// configured.
var ErrVoiceUnsupported = errors.New("voice is not supported in this environment")

// Gateway is the client-side port to the server endpoint.
type Gateway interface {
	Ask(ctx context.Context, text string, history []domain.Turn, mode string) (string, *domain.Failure)
}

// Transcript strings. The pending sentinel and the two apologies are
// deliberately distinct so a failed reply never reads like a successful one.
const (
	Greeting         = "Shalom, haver. I'm ChavrutaGPT, your learning partner. What would you like to explore today?"
	ThinkingSentinel = "Thinking…"
	HTTPApology      = "Sorry, there was a problem talking to ChavrutaGPT. Please try again."
	NetworkApology   = "Sorry, there was a network error talking to ChavrutaGPT."
	EmptyFallback    = "I'm not sure how to respond just now. Let's try asking in a different way."

	statusReady    = "ChavrutaGPT ready."
	statusSending  = "Sending question to ChavrutaGPT…"
	statusReceived = "Response received from ChavrutaGPT."
	statusCleared  = "Conversation cleared."
)

// SessionConfig wires one chat session. Gateway and Broker are required;
// speech adapters are optional capabilities.
type SessionConfig struct {
	ID           string
	Gateway      Gateway
	Broker       domain.MessageBroker
	Synthesizer  domain.Synthesizer
	Recognizer   domain.Recognizer
	HistoryCap   int
	Mode         string
	VoiceReplies bool
}

// Session orchestrates one request/reply cycle at a time: capture input,
// append to history, render a pending placeholder, invoke the gateway,
// resolve or fail the placeholder, update status. Lifetime is one
// connection; nothing survives teardown.
type Session struct {
	id      string
	gateway Gateway
	broker  domain.MessageBroker
	synth   domain.Synthesizer
	recog   domain.Recognizer
	history *domain.History
	mode    string
	voice   bool

	mu         sync.Mutex
	state      State
	generation int
	nextEntry  int
	draft      string
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		id:      cfg.ID,
		gateway: cfg.Gateway,
		broker:  cfg.Broker,
		synth:   cfg.Synthesizer,
		recog:   cfg.Recognizer,
		history: domain.NewHistory(cfg.HistoryCap),
		mode:    cfg.Mode,
		voice:   cfg.VoiceReplies,
		state:   StateIdle,
	}

	s.mu.Lock()
	s.renderTurn(domain.AssistantRole, Greeting)
	s.publishStatus(statusReady)
	s.mu.Unlock()

	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) History() *domain.History { return s.history }

// Submit runs one full request/reply cycle. Whitespace-only input is a
// no-op. A submit while another is awaiting its reply returns ErrBusy and
// changes nothing.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.state == StateAwaitingReply {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateAwaitingReply
	generation := s.generation

	// The snapshot rides with the request; the current turn travels
	// separately as the message field.
	snapshot := s.history.Snapshot()

	s.renderTurn(domain.UserRole, text)
	s.history.Append(domain.NewTurn(domain.UserRole, text))
	pendingID := s.renderTurn(domain.AssistantRole, ThinkingSentinel)
	s.publishStatus(statusSending)
	s.mu.Unlock()

	reply, failure := s.gateway.Ask(ctx, text, snapshot, s.mode)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A clear while the request was in flight invalidated the placeholder;
	// drop the stale resolution instead of rendering into the fresh
	// transcript.
	if s.generation != generation {
		return nil
	}

	if failure != nil {
		apology := NetworkApology
		diagnostic := "Network error talking to ChavrutaGPT."
		if failure.Status != 0 {
			apology = HTTPApology
			diagnostic = fmt.Sprintf("HTTP error %d", failure.Status)
		}
		s.resolveTurn(pendingID, apology)
		s.publishStatus(diagnostic)
		s.state = StateIdle
		log.WithCtx(ctx).Warn("submit failed",
			zap.String("session_id", s.id),
			zap.Error(failure))
		return nil
	}

	reply = strings.TrimSpace(reply)
	rendered := reply
	if rendered == "" {
		rendered = EmptyFallback
	}
	s.resolveTurn(pendingID, rendered)
	if reply != "" {
		s.history.Append(domain.NewTurn(domain.AssistantRole, reply))
	}
	s.publishStatus(statusReceived)
	s.state = StateIdle

	if s.voice && reply != "" && s.synth != nil && s.synth.Supported() {
		go s.speak(generation, reply)
	}
	return nil
}

// Clear wipes transcript and history together, then re-seeds the greeting.
// The greeting is rendered but never re-sent upstream. Bumping the
// generation drops any reply still in flight.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.state = StateIdle
	s.history.Clear()
	s.publish(domain.TranscriptEvent{Type: domain.EventClear})
	s.renderTurn(domain.AssistantRole, Greeting)
	s.publishStatus(statusCleared)
}

// StartListening begins speech capture. Finalized transcripts are inserted
// into the draft input surface, never auto-submitted. A listening failure
// resets to idle with a neutral status, no user-facing error.
func (s *Session) StartListening(ctx context.Context) error {
	if s.recog == nil || !s.recog.Supported() {
		return ErrVoiceUnsupported
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateListening
	s.mu.Unlock()

	err := s.recog.Start(ctx, s.AppendDraft)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.publishStatus(statusReady)
		s.mu.Unlock()
		log.WithCtx(ctx).Warn("listening failed", zap.String("session_id", s.id), zap.Error(err))
	}
	return err
}

func (s *Session) StopListening() {
	if s.recog == nil {
		return
	}
	if err := s.recog.Stop(); err != nil {
		log.With(zap.String("session_id", s.id)).Warn("stop listening", zap.Error(err))
	}

	s.mu.Lock()
	if s.state == StateListening {
		s.state = StateIdle
		s.publishStatus(statusReady)
	}
	s.mu.Unlock()
}

// FeedAudio forwards captured audio to the recognizer while listening.
func (s *Session) FeedAudio(chunk []byte) error {
	if s.recog == nil || !s.recog.Supported() {
		return ErrVoiceUnsupported
	}
	return s.recog.Feed(chunk)
}

// AppendDraft inserts text into the input surface without submitting it.
func (s *Session) AppendDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft != "" {
		s.draft += " "
	}
	s.draft += text
	s.publish(domain.TranscriptEvent{Type: domain.EventDraft, Text: s.draft})
}

// TakeDraft returns the accumulated draft and empties it.
func (s *Session) TakeDraft() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.draft
	s.draft = ""
	return draft
}

// speak synthesizes a reply off the chat path. Failures are logged, never
// surfaced; a clear mid-synthesis discards the audio.
func (s *Session) speak(generation int, reply string) {
	s.mu.Lock()
	if s.generation != generation || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateSpeaking
	s.mu.Unlock()

	ctx := context.Background()
	audio, err := s.synth.Synthesize(ctx, Speakable(reply))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSpeaking {
		s.state = StateIdle
	}
	if err != nil {
		log.WithCtx(ctx).Warn("synthesize failed", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	if s.generation != generation {
		return
	}
	s.publish(domain.TranscriptEvent{Type: domain.EventAudio, Audio: audio})
}

// renderTurn publishes a transcript entry and returns its id. Caller holds
// the lock.
func (s *Session) renderTurn(role domain.Role, text string) int {
	s.nextEntry++
	s.publish(domain.TranscriptEvent{
		Type:    domain.EventTurn,
		EntryID: s.nextEntry,
		Role:    role,
		Text:    text,
	})
	return s.nextEntry
}

// resolveTurn replaces the content of a previously rendered entry. Each
// pending entry is resolved exactly once. Caller holds the lock.
func (s *Session) resolveTurn(entryID int, text string) {
	s.publish(domain.TranscriptEvent{
		Type:    domain.EventResolve,
		EntryID: entryID,
		Role:    domain.AssistantRole,
		Text:    text,
	})
}

func (s *Session) publishStatus(text string) {
	s.publish(domain.TranscriptEvent{Type: domain.EventStatus, Text: text})
}

func (s *Session) publish(event domain.TranscriptEvent) {
	if s.broker == nil {
		return
	}
	event.SessionID = s.id
	event.Timestamp = time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.With(zap.String("session_id", s.id)).Error("marshal transcript event", zap.Error(err))
		return
	}
	if err := s.broker.Publish(context.Background(), TranscriptTopic, s.id, payload); err != nil {
		log.With(zap.String("session_id", s.id)).Warn("publish transcript event", zap.Error(err))
	}
}
