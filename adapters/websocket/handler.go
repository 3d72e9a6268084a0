package websocket

import (
	"github.com/labstack/echo/v4"

	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/usecase"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// Handler upgrades a connection and runs one session for its lifetime.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sessionID, err := newSessionID()
	if err != nil {
		conn.Close()
		return err
	}

	// Subscribe before the session exists so the greeting and ready status
	// published at construction are not missed.
	events, err := s.config.Broker.Subscribe(c.Request().Context(), usecase.TranscriptTopic, sessionID)
	if err != nil {
		conn.Close()
		return err
	}

	var recognizer domain.Recognizer
	if s.config.NewRecognizer != nil {
		recognizer = s.config.NewRecognizer()
	}
	session := usecase.NewSession(usecase.SessionConfig{
		ID:           sessionID,
		Gateway:      s.config.Gateway,
		Broker:       s.config.Broker,
		Synthesizer:  s.config.Synthesizer,
		Recognizer:   recognizer,
		HistoryCap:   s.config.HistoryCap,
		Mode:         s.config.Mode,
		VoiceReplies: s.config.VoiceReplies,
	})

	client := NewClient(conn, session)
	s.hub.Register(client)
	client.Run()
	go s.forwardTranscript(client.Context(), client, events)

	defer func() {
		session.StopListening()
		// Releasing the routing key closes the event channel, which ends
		// the forwarder; without this every connection would leave a topic
		// channel behind for the life of the process.
		if err := s.config.Broker.Unsubscribe(usecase.TranscriptTopic, sessionID); err != nil {
			log.WithCtx(client.Context()).Warn("unsubscribe transcript topic", zap.Error(err))
		}
		s.hub.Unregister(client)
	}()

	// Wait for the client context to be done (connection closed).
	<-client.Context().Done()

	return nil
}
