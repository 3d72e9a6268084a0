package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/usecase"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// Config carries the dependencies every connection's session shares, plus a
// recognizer factory since streaming recognizers are one-per-session.
type Config struct {
	Gateway       usecase.Gateway
	Broker        domain.MessageBroker
	Synthesizer   domain.Synthesizer
	NewRecognizer func() domain.Recognizer
	HistoryCap    int
	Mode          string
	VoiceReplies  bool
}

// Server owns the transcript surface: one websocket connection per chat
// session, transcript events forwarded from the broker to the browser.
type Server struct {
	upgrader websocket.Upgrader
	config   Config
	hub      *Hub
}

func NewServer(config Config) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		config:   config,
		hub:      NewHub(),
	}
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

// ClientCount reports how many transcript connections are open.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// newSessionID returns a random id for one connection's session.
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// forwardTranscript pipes this session's transcript events to the
// connection until it closes.
func (s *Server) forwardTranscript(ctx context.Context, client *Client, events <-chan domain.Message) {
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := client.SendMessage(msg.Payload); err != nil {
				log.WithCtx(ctx).Debug("transcript forward stopped", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
