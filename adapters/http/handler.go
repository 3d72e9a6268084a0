package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/usecase"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// ChatHandler serves the server half of the system: validate the request,
// compose the prompt, call the upstream, map failures onto the wire
// contract. Stateless per invocation; it is a pure function of the request
// payload plus process configuration.
type ChatHandler struct {
	completer domain.Completer
	clients   ClientCounter
}

// ClientCounter reports how many transcript connections are open. The
// websocket server satisfies it; nil means the surface is not wired.
type ClientCounter interface {
	ClientCount() int
}

func NewChatHandler(completer domain.Completer, clients ClientCounter) *ChatHandler {
	return &ChatHandler{completer: completer, clients: clients}
}

// ChatRequest is the standardized request shape. message is primary;
// latestUserText is the historical field name older clients still send.
type ChatRequest struct {
	Message        string               `json:"message"`
	LatestUserText string               `json:"latestUserText"`
	History        []domain.ChatMessage `json:"history"`
	Mode           string               `json:"mode"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Chat handles every method on the chat route. OPTIONS preflights are
// answered by the CORS middleware before reaching here; anything but POST is
// misrouting and gets a 405.
func (h *ChatHandler) Chat(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		text = strings.TrimSpace(req.LatestUserText)
	}
	if text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No user text provided"})
	}

	history := make([]domain.Turn, 0, len(req.History))
	for _, msg := range req.History {
		history = append(history, domain.Turn{Role: msg.Role, Content: msg.Content})
	}

	ctx := c.Request().Context()
	messages := usecase.Compose(text, history, req.Mode)

	started := time.Now()
	reply, err := h.completer.Complete(ctx, messages)
	if err != nil {
		if failure, ok := err.(*domain.Failure); ok {
			log.WithCtx(ctx).Error("completion failed",
				zap.String("kind", string(failure.Kind)),
				zap.Error(failure))
			return c.JSON(failure.HTTPStatus(), ErrorResponse{
				Error:  failureMessage(failure.Kind),
				Detail: failure.Excerpt,
			})
		}
		log.WithCtx(ctx).Error("completion failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Server error"})
	}

	log.WithCtx(ctx).Info("completion served",
		zap.Int("history_turns", len(history)),
		zap.Duration("elapsed", time.Since(started)))
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

// Health reports liveness and, when the transcript surface is wired, how
// many connections it is carrying.
func (h *ChatHandler) Health(c echo.Context) error {
	body := map[string]interface{}{"status": "ok"}
	if h.clients != nil {
		body["clients"] = h.clients.ClientCount()
	}
	return c.JSON(http.StatusOK, body)
}

func failureMessage(kind domain.FailureKind) string {
	switch kind {
	case domain.BadRequest:
		return "No user text provided"
	case domain.MethodNotAllowed:
		return "Method not allowed"
	case domain.Misconfigured:
		return "Missing upstream credential"
	case domain.UpstreamError:
		return "Error from upstream"
	default:
		return "Server error"
	}
}
