package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminanexus/chavruta/domain"
)

// recordingBroker captures every transcript event a session publishes.
type recordingBroker struct {
	mu     sync.Mutex
	events []domain.TranscriptEvent
}

func (b *recordingBroker) Publish(_ context.Context, _ string, _ string, payload []byte) error {
	var event domain.TranscriptEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string, string) (<-chan domain.Message, error) {
	return nil, nil
}

func (b *recordingBroker) Unsubscribe(string, string) error { return nil }

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) all() []domain.TranscriptEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.TranscriptEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroker) ofType(t domain.TranscriptEventType) []domain.TranscriptEvent {
	var out []domain.TranscriptEvent
	for _, event := range b.all() {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

// fakeGateway scripts the server's answer. A non-nil gate holds the request
// open until released, for in-flight tests.
type fakeGateway struct {
	mu          sync.Mutex
	reply       string
	failure     *domain.Failure
	gate        chan struct{}
	calls       int
	lastText    string
	lastHistory []domain.Turn
}

func (g *fakeGateway) Ask(_ context.Context, text string, history []domain.Turn, _ string) (string, *domain.Failure) {
	g.mu.Lock()
	g.calls++
	g.lastText = text
	g.lastHistory = history
	gate := g.gate
	reply, failure := g.reply, g.failure
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return reply, failure
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeSynth struct {
	mu     sync.Mutex
	err    error
	spoken []string
}

func (s *fakeSynth) Supported() bool { return true }

func (s *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.spoken = append(s.spoken, text)
	return []byte("audio"), nil
}

func (s *fakeSynth) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeRecognizer struct {
	mu       sync.Mutex
	startErr error
	onFinal  func(string)
	stopped  bool
}

func (r *fakeRecognizer) Supported() bool { return true }

func (r *fakeRecognizer) Start(_ context.Context, onTranscript func(string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.onFinal = onTranscript
	return nil
}

func (r *fakeRecognizer) Feed([]byte) error { return nil }

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRecognizer) finalize(text string) {
	r.mu.Lock()
	onFinal := r.onFinal
	r.mu.Unlock()
	if onFinal != nil {
		onFinal(text)
	}
}

func newTestSession(t *testing.T, cfg SessionConfig) (*Session, *recordingBroker) {
	t.Helper()
	broker := &recordingBroker{}
	cfg.ID = "test-session"
	cfg.Broker = broker
	if cfg.Gateway == nil {
		cfg.Gateway = &fakeGateway{}
	}
	return NewSession(cfg), broker
}

func TestNewSessionRendersGreeting(t *testing.T) {
	session, broker := newTestSession(t, SessionConfig{})

	turns := broker.ofType(domain.EventTurn)
	require.Len(t, turns, 1)
	assert.Equal(t, domain.AssistantRole, turns[0].Role)
	assert.Equal(t, Greeting, turns[0].Text)
	assert.Equal(t, 0, session.History().Len())
	assert.Equal(t, StateIdle, session.State())
}

func TestSubmitSuccess(t *testing.T) {
	gw := &fakeGateway{reply: "It describes the beginning of creation."}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})

	err := session.Submit(context.Background(), "What is chapter 1 verse 1 about?")
	require.NoError(t, err)

	// The snapshot rides without the current turn; the text travels in the
	// message field.
	assert.Equal(t, "What is chapter 1 verse 1 about?", gw.lastText)
	assert.Empty(t, gw.lastHistory)

	turns := broker.ofType(domain.EventTurn)
	require.Len(t, turns, 3) // greeting, user, pending
	assert.Equal(t, domain.UserRole, turns[1].Role)
	assert.Equal(t, ThinkingSentinel, turns[2].Text)

	resolves := broker.ofType(domain.EventResolve)
	require.Len(t, resolves, 1)
	assert.Equal(t, turns[2].EntryID, resolves[0].EntryID)
	assert.Equal(t, "It describes the beginning of creation.", resolves[0].Text)

	snapshot := session.History().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, domain.UserRole, snapshot[0].Role)
	assert.Equal(t, domain.AssistantRole, snapshot[1].Role)
	assert.Equal(t, StateIdle, session.State())
}

func TestSubmitWhitespaceIsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})
	before := len(broker.all())

	require.NoError(t, session.Submit(context.Background(), "   \n\t "))

	assert.Equal(t, 0, gw.callCount())
	assert.Equal(t, 0, session.History().Len())
	assert.Len(t, broker.all(), before)
}

func TestSubmitEmptyReplyRendersFallback(t *testing.T) {
	gw := &fakeGateway{reply: "   "}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})

	require.NoError(t, session.Submit(context.Background(), "hello"))

	resolves := broker.ofType(domain.EventResolve)
	require.Len(t, resolves, 1)
	assert.Equal(t, EmptyFallback, resolves[0].Text)

	// The fallback is rendered but an empty reply is never persisted.
	snapshot := session.History().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.UserRole, snapshot[0].Role)
}

func TestSubmitHTTPFailure(t *testing.T) {
	failure := domain.NewFailure(domain.UpstreamError, "server error")
	failure.Status = 502
	gw := &fakeGateway{failure: failure}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})

	require.NoError(t, session.Submit(context.Background(), "hello"))

	resolves := broker.ofType(domain.EventResolve)
	require.Len(t, resolves, 1)
	assert.Equal(t, HTTPApology, resolves[0].Text)

	statuses := broker.ofType(domain.EventStatus)
	assert.Equal(t, "HTTP error 502", statuses[len(statuses)-1].Text)

	// Failed replies are not persisted; only the user turn remains.
	snapshot := session.History().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.UserRole, snapshot[0].Role)
	assert.Equal(t, StateIdle, session.State())
}

func TestSubmitNetworkFailure(t *testing.T) {
	gw := &fakeGateway{failure: domain.NewFailure(domain.ServerError, "network error")}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})

	require.NoError(t, session.Submit(context.Background(), "hello"))

	resolves := broker.ofType(domain.EventResolve)
	require.Len(t, resolves, 1)
	assert.Equal(t, NetworkApology, resolves[0].Text)
}

func TestSubmitWhileAwaitingReplyIsRejected(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{reply: "ok", gate: gate}
	session, _ := newTestSession(t, SessionConfig{Gateway: gw})

	done := make(chan error, 1)
	go func() { done <- session.Submit(context.Background(), "first") }()

	require.Eventually(t, func() bool {
		return session.State() == StateAwaitingReply
	}, time.Second, 5*time.Millisecond)

	err := session.Submit(context.Background(), "second")
	assert.True(t, errors.Is(err, ErrBusy))

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.callCount())
}

func TestThirteenExchangesKeepTwelveTurns(t *testing.T) {
	gw := &fakeGateway{reply: "answer"}
	session, _ := newTestSession(t, SessionConfig{Gateway: gw, HistoryCap: 12})

	for i := 1; i <= 13; i++ {
		require.NoError(t, session.Submit(context.Background(), fmt.Sprintf("question %d", i)))
	}

	snapshot := session.History().Snapshot()
	require.Len(t, snapshot, 12)

	// The oldest exchanges are evicted first; what remains is the most
	// recent turns in conversation order, user always before its reply.
	assert.Equal(t, "question 8", snapshot[0].Content)
	assert.Equal(t, domain.UserRole, snapshot[0].Role)
	assert.Equal(t, "question 13", snapshot[10].Content)
	assert.Equal(t, domain.AssistantRole, snapshot[11].Role)
	for i := 0; i < len(snapshot); i += 2 {
		assert.Equal(t, domain.UserRole, snapshot[i].Role)
		assert.Equal(t, domain.AssistantRole, snapshot[i+1].Role)
	}
}

func TestClearReseedsGreeting(t *testing.T) {
	gw := &fakeGateway{reply: "answer"}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})
	require.NoError(t, session.Submit(context.Background(), "hello"))

	session.Clear()

	assert.Equal(t, 0, session.History().Len())
	assert.Empty(t, session.History().Snapshot())

	events := broker.all()
	clearIdx := -1
	for i, event := range events {
		if event.Type == domain.EventClear {
			clearIdx = i
		}
	}
	require.GreaterOrEqual(t, clearIdx, 0)

	var turnsAfter []domain.TranscriptEvent
	for _, event := range events[clearIdx:] {
		if event.Type == domain.EventTurn {
			turnsAfter = append(turnsAfter, event)
		}
	}
	require.Len(t, turnsAfter, 1)
	assert.Equal(t, Greeting, turnsAfter[0].Text)
}

func TestClearMidFlightDropsStaleResolution(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{reply: "late reply", gate: gate}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw})

	done := make(chan error, 1)
	go func() { done <- session.Submit(context.Background(), "question") }()

	require.Eventually(t, func() bool {
		return session.State() == StateAwaitingReply
	}, time.Second, 5*time.Millisecond)

	session.Clear()
	close(gate)
	require.NoError(t, <-done)

	// The reply arrived after the clear invalidated its placeholder; it
	// must not be rendered into the fresh transcript.
	assert.Empty(t, broker.ofType(domain.EventResolve))
	assert.Equal(t, 0, session.History().Len())
	assert.Equal(t, StateIdle, session.State())
}

func TestVoiceReplyIsSpoken(t *testing.T) {
	gw := &fakeGateway{reply: "See Bereshit 1:1 for the opening."}
	synth := &fakeSynth{}
	session, broker := newTestSession(t, SessionConfig{
		Gateway:      gw,
		Synthesizer:  synth,
		VoiceReplies: true,
	})

	require.NoError(t, session.Submit(context.Background(), "where does it start?"))

	require.Eventually(t, func() bool {
		return len(broker.ofType(domain.EventAudio)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"See Bereshit chapter 1, verse 1 for the opening."}, synth.spokenTexts())

	require.Eventually(t, func() bool {
		return session.State() == StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestSynthesisFailureNeverBreaksChat(t *testing.T) {
	gw := &fakeGateway{reply: "a reply"}
	synth := &fakeSynth{err: errors.New("no audio device")}
	session, broker := newTestSession(t, SessionConfig{
		Gateway:      gw,
		Synthesizer:  synth,
		VoiceReplies: true,
	})

	require.NoError(t, session.Submit(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return session.State() == StateIdle
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, broker.ofType(domain.EventAudio))
	assert.Equal(t, 2, session.History().Len())
}

func TestListeningInsertsDraftWithoutSubmitting(t *testing.T) {
	gw := &fakeGateway{}
	recognizer := &fakeRecognizer{}
	session, broker := newTestSession(t, SessionConfig{Gateway: gw, Recognizer: recognizer})

	require.NoError(t, session.StartListening(context.Background()))
	assert.Equal(t, StateListening, session.State())

	recognizer.finalize("what does")
	recognizer.finalize("shalom mean")

	drafts := broker.ofType(domain.EventDraft)
	require.Len(t, drafts, 2)
	assert.Equal(t, "what does shalom mean", drafts[1].Text)
	assert.Equal(t, 0, gw.callCount())

	session.StopListening()
	assert.Equal(t, StateIdle, session.State())
	assert.Equal(t, "what does shalom mean", session.TakeDraft())
	assert.Equal(t, "", session.TakeDraft())
}

func TestListeningFailureResetsQuietly(t *testing.T) {
	recognizer := &fakeRecognizer{startErr: errors.New("mic unavailable")}
	session, broker := newTestSession(t, SessionConfig{Recognizer: recognizer})

	err := session.StartListening(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, session.State())

	// Neutral status reset, no apology rendered.
	statuses := broker.ofType(domain.EventStatus)
	assert.Equal(t, "ChavrutaGPT ready.", statuses[len(statuses)-1].Text)
	assert.Empty(t, broker.ofType(domain.EventResolve))
}

func TestListeningUnsupported(t *testing.T) {
	session, _ := newTestSession(t, SessionConfig{})

	err := session.StartListening(context.Background())
	assert.True(t, errors.Is(err, ErrVoiceUnsupported))
	assert.Equal(t, StateIdle, session.State())
}
