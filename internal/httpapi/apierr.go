package httpapi

import (
	"errors"
	"net/http"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/router"
)

// Kind classifies an API error into the handful of buckets every handler
// maps onto an HTTP status and an ApiResponse envelope.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	UpstreamTransient
	UpstreamPermanent
)

// APIError is the error type every handler is expected to return (wrapped
// or bare) so writeError can pick the right status code and message.
type APIError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}
func (e *APIError) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, err error) *APIError {
	return &APIError{Kind: kind, Msg: msg, Err: err}
}

func validationErr(msg string) *APIError       { return newErr(Validation, msg, nil) }
func notFoundErr(msg string) *APIError         { return newErr(NotFound, msg, nil) }
func internalErr(msg string, err error) *APIError { return newErr(Internal, msg, err) }

// classify maps a plain error — including llm.UpstreamError, which the
// router and memory manager's upstream calls return — onto a Kind.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, router.ErrNoModelsRegistered) {
		return notFoundErr(err.Error())
	}
	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Transient {
			return newErr(UpstreamTransient, "upstream call failed", err)
		}
		return newErr(UpstreamPermanent, "upstream call failed", err)
	}
	return internalErr("internal error", err)
}

func (k Kind) httpStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case UpstreamTransient:
		return http.StatusBadGateway
	case UpstreamPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
