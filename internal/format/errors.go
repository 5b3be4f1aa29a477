package format

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by every MissingFieldError.
var ErrMissingField = errors.New("missing required field")

// MissingFieldError reports a video field that labelling needs but the
// catalog does not have.
type MissingFieldError struct {
	VideoID int64
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("video %d: %s: %s", e.VideoID, ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }
