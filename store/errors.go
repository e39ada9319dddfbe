package store

import (
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var ErrNotFound = errors.New("store: document not found")

// DuplicateKeyError reports a unique index violation on Field.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return e.Field + " already exists"
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

var (
	dupKeyFieldRe = regexp.MustCompile(`dup key: \{ ?"?([A-Za-z0-9.]+)"?:`)
	dupIndexRe    = regexp.MustCompile(`index: ([A-Za-z0-9.]+)_-?1`)
)

// translateError maps driver errors onto the store's sentinel errors.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return &DuplicateKeyError{Field: duplicateField(err), Err: err}
	default:
		return err
	}
}

func duplicateField(err error) string {
	msg := err.Error()
	if m := dupKeyFieldRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := dupIndexRe.FindStringSubmatch(msg); m != nil {
		return strings.SplitN(m[1], ".", 2)[0]
	}
	return "record"
}
