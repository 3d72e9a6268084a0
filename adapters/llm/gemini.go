package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/luminanexus/chavruta/domain"
)

// GeminiModel is the alternate upstream model used when CHAVRUTA_UPSTREAM
// selects gemini.
const GeminiModel = "gemini-2.0-flash-001"

// GeminiClient implements domain.Completer on the genai SDK.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Complete maps the composed messages onto Gemini's chat shape. Gemini has
// no system role in v1 chat history, so the preamble rides as the first
// user turn. Failures map to the same taxonomy as the OpenAI completer.
func (g *GeminiClient) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.NewFailure(domain.BadRequest, "no messages to complete")
	}

	last := messages[len(messages)-1]
	prior := messages[:len(messages)-1]

	history := make([]*genai.Content, len(prior))
	for i, msg := range prior {
		role := genai.RoleModel
		if msg.Role == domain.UserRole || msg.Role == domain.SystemRole {
			role = genai.RoleUser
		}
		history[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		}
	}

	chat, err := g.client.Chats.Create(ctx, GeminiModel, nil, history)
	if err != nil {
		return "", domain.NewFailure(domain.ServerError, "creating upstream chat").WithExcerpt(err.Error())
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return "", domain.NewFailure(domain.UpstreamError, "error from upstream").WithExcerpt(err.Error())
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return domain.EmptyReplyFallback, nil
	}
	return reply, nil
}
