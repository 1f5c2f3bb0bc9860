package workflow

import "errors"

// Validation failures. They are reported before any request is made.
var (
	ErrNoFileSelected  = errors.New("no file selected")
	ErrEmptyFilename   = errors.New("original filename is empty")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrUnsupportedFile = errors.New("only .xlsx and .xls files are supported")
	ErrInvalidPolicy   = errors.New("unknown embedding policy")
)

// ValidationError wraps one of the sentinels above with the offending value.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was raised by local input validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
