package segment

import (
	"errors"
	"fmt"
)

// Kind classifies a segmentation failure.
type Kind string

const (
	KindParse  Kind = "parse"
	KindIO     Kind = "io"
	KindTool   Kind = "tool"
	KindConfig Kind = "config"
)

// Error is returned by every operation in this package.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a segment *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func parseErr(op string, err error) error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

func ioErr(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func toolErr(op string, err error) error {
	return &Error{Kind: KindTool, Op: op, Err: err}
}

func configErr(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}
