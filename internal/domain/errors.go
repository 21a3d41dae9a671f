package domain

import "errors"

// Kind classifies why a render request failed.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInput
	KindLaunch
	KindNavigation
	KindLoad
	KindSerialization
	KindUnavailable
)

var kindNames = [...]string{
	KindInternal:      "internal",
	KindInput:         "input",
	KindLaunch:        "launch",
	KindNavigation:    "navigation",
	KindLoad:          "load",
	KindSerialization: "serialization",
	KindUnavailable:   "unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a render failure tagged with its Kind. Op names the step that
// failed ("launch browser", "set content", ...).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds a tagged error. A nil err yields nil so call sites can wrap
// unconditionally.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost tagged error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// ErrMissingHTML is returned when a POST body carries no HTML.
	ErrMissingHTML = errors.New("Missing HTML content in request body")
	// ErrNotPDF signals that the engine produced bytes without the PDF signature.
	ErrNotPDF = errors.New("renderer output is not a PDF document")
	// ErrPDFTooLarge signals that the rendered PDF exceeds the configured limit.
	ErrPDFTooLarge = errors.New("rendered PDF exceeds allowed size")
)
