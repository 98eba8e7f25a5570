package normalize

// Kind identifies where normalization failed.
type Kind string

const (
	KindInvalidAPIResponse Kind = "INVALID_API_RESPONSE"
	KindEmptyModelResponse Kind = "EMPTY_MODEL_RESPONSE"
	KindInvalidJSONFormat  Kind = "INVALID_JSON_FORMAT"
	KindInvalidModelJSON   Kind = "INVALID_MODEL_JSON"
)

// Error is a non-retryable failure to turn an upstream reply into a result.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "normalize: " + string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return "normalize: " + string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
