package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/luminanexus/chavruta/domain"
)

// wireTurn is the history element on the client/server wire.
type wireTurn struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// askRequest is the standardized request shape. The server also accepts the
// historical latestUserText field; new clients send message.
type askRequest struct {
	Message string     `json:"message"`
	History []wireTurn `json:"history"`
	Mode    string     `json:"mode,omitempty"`
}

// replyFields is the documented, ordered list of response fields a reply may
// arrive in. Earlier fields win. Deployed snapshots of the server have used
// all four names at one time or another.
type replyFields struct {
	Reply   string `json:"reply"`
	Answer  string `json:"answer"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (r replyFields) first() string {
	for _, candidate := range []string{r.Reply, r.Answer, r.Message, r.Text} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Client is the thin network call to the server endpoint. It knows the wire
// contract and nothing else.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}
}

// Ask posts the current text and a capped history snapshot. Non-2xx maps to
// a failure carrying the status; a transport error maps to a failure with
// no status; a malformed body is a failure too. An empty reply after
// trimming is a valid reply, not a failure — the session controller maps it
// to its fallback message.
func (c *Client) Ask(ctx context.Context, text string, history []domain.Turn, mode string) (string, *domain.Failure) {
	turns := make([]wireTurn, 0, len(history))
	for _, turn := range history {
		if turn.WellFormed() {
			turns = append(turns, wireTurn{Role: turn.Role, Content: turn.Content})
		}
	}

	body, err := json.Marshal(askRequest{Message: text, History: turns, Mode: mode})
	if err != nil {
		return "", domain.NewFailure(domain.BadRequest, "encoding request").WithExcerpt(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewFailure(domain.ServerError, "building request").WithExcerpt(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewFailure(domain.ServerError, "network error").WithExcerpt(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		failure := domain.NewFailure(domain.UpstreamError, "server error")
		failure.Status = resp.StatusCode
		return "", failure
	}

	var fields replyFields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		failure := domain.NewFailure(domain.ServerError, "malformed response body").WithExcerpt(err.Error())
		failure.Status = resp.StatusCode
		return "", failure
	}

	return strings.TrimSpace(fields.first()), nil
}
