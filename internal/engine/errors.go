package engine

import (
	"errors"

	"github.com/sells-group/lifeline/internal/normalize"
	"github.com/sells-group/lifeline/internal/upstream"
)

// Kind is the machine-readable error code sent to the caller.
type Kind string

const (
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindMissingCustomConfig Kind = "MISSING_CUSTOM_API_CONFIG"
	KindDefaultKeyNotSet    Kind = "SERVER_DEFAULT_KEY_NOT_SET"
	KindAPIAuthFailed       Kind = "API_AUTH_FAILED"
	KindAllModelsFailed     Kind = "ALL_MODELS_FAILED"
	KindInvalidAPIResponse  Kind = Kind(normalize.KindInvalidAPIResponse)
	KindEmptyModelResponse  Kind = Kind(normalize.KindEmptyModelResponse)
	KindInvalidJSONFormat   Kind = Kind(normalize.KindInvalidJSONFormat)
	KindInvalidModelJSON    Kind = Kind(normalize.KindInvalidModelJSON)
	KindSettlementFailed    Kind = "SETTLEMENT_FAILED"
	KindInsufficientPoints  Kind = "INSUFFICIENT_POINTS"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// Error is a terminal run failure.
type Error struct {
	Kind        Kind
	Message     string
	TriedModels []string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "engine: " + string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return "engine: " + string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func candidateError(err error) *Error {
	switch {
	case errors.Is(err, upstream.ErrMissingCustomConfig):
		return &Error{Kind: KindMissingCustomConfig, Message: "custom API requires a base URL, key and model", Err: err}
	case errors.Is(err, upstream.ErrDefaultKeyNotSet):
		return &Error{Kind: KindDefaultKeyNotSet, Message: "server API key is not configured", Err: err}
	default:
		return &Error{Kind: KindInternal, Message: "no upstream model is configured", Err: err}
	}
}

func normalizeError(err error) *Error {
	var ne *normalize.Error
	if !errors.As(err, &ne) {
		return &Error{Kind: KindInternal, Message: "could not read model reply", Err: err}
	}
	msg := ne.Message
	switch ne.Kind {
	case normalize.KindInvalidAPIResponse:
		msg = "upstream returned data in an invalid format"
	case normalize.KindEmptyModelResponse:
		msg = "model returned no content"
	case normalize.KindInvalidJSONFormat:
		msg = "model reply is not valid JSON"
	case normalize.KindInvalidModelJSON:
		msg = "model reply has the wrong structure"
	}
	return &Error{Kind: Kind(ne.Kind), Message: msg, Err: err}
}
