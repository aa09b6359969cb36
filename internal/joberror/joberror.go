// Package joberror defines the error taxonomy shared by every tool wrapper and
// the localized category messages shown next to a tool's own diagnostics.
package joberror

import (
	"errors"
	"io/fs"
	"strings"

	"mediaforge/internal/models"
)

// Error is a classified failure from a collaborator.
type Error struct {
	Kind    models.ErrorKind
	Op      string
	Command string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Detail != "" && e.Err != nil:
		b.WriteString(e.Detail)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Detail != "":
		b.WriteString(e.Detail)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorKind() models.ErrorKind { return e.Kind }

func New(kind models.ErrorKind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func Wrap(kind models.ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IO wraps filesystem failures.
func IO(op string, err error) *Error {
	return Wrap(models.KindIOFailure, op, err)
}

// KindOf classifies any error. Errors that carry no kind are treated as tool
// failures, except filesystem errors which are IOFailure.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	var kinded interface{ ErrorKind() models.ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return models.KindIOFailure
	}
	return models.KindToolExecutionFailed
}

// Is reports whether err carries the given kind.
func Is(err error, kind models.ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
