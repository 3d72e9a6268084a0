package domain

import (
	"fmt"
	"net/http"
)

// FailureKind classifies everything that can go wrong between the user's
// text and the upstream reply.
type FailureKind string

const (
	// BadRequest covers empty or malformed user input and bodies.
	BadRequest FailureKind = "bad_request"
	// MethodNotAllowed indicates misrouting, not a user mistake.
	MethodNotAllowed FailureKind = "method_not_allowed"
	// Misconfigured means the upstream credential is absent. Operator
	// actionable only.
	Misconfigured FailureKind = "misconfigured"
	// UpstreamError is a non-2xx from the completion provider. Transient;
	// the user may retry.
	UpstreamError FailureKind = "upstream_error"
	// ServerError covers transport exceptions and anything unhandled.
	ServerError FailureKind = "server_error"
)

// Failure carries a failure kind across layers. Message is user facing;
// Excerpt holds at most ExcerptLimit bytes of upstream detail. The raw
// upstream body is logged in full but never returned past the excerpt.
type Failure struct {
	Kind    FailureKind
	Message string
	Excerpt string
	// Status is the HTTP status observed by the gateway client, 0 when the
	// request never reached the server.
	Status int
}

// ExcerptLimit bounds how much upstream error detail leaves the server.
const ExcerptLimit = 200

func (f *Failure) Error() string {
	if f.Excerpt != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Excerpt)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// WithExcerpt attaches a bounded slice of upstream detail.
func (f *Failure) WithExcerpt(detail string) *Failure {
	if len(detail) > ExcerptLimit {
		detail = detail[:ExcerptLimit]
	}
	f.Excerpt = detail
	return f
}

// HTTPStatus maps the taxonomy onto the wire contract.
func (f *Failure) HTTPStatus() int {
	switch f.Kind {
	case BadRequest:
		return http.StatusBadRequest
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
