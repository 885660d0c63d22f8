package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindExtractionFailed    Kind = "extraction_failed"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindChunkingEmpty       Kind = "chunking_empty"
	KindPersistence         Kind = "persistence"
)

// Error is a classified ingestion failure. Retryable is decided where the
// failure is observed and is the only input to the retry policy.
type Error struct {
	Kind      Kind
	Retryable bool
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Configuration(msg string) error {
	return &Error{Kind: KindConfiguration, Msg: msg}
}

func ExtractionFailed(msg string, retryable bool, cause error) error {
	return &Error{Kind: KindExtractionFailed, Retryable: retryable, Msg: msg, Err: cause}
}

func ProviderUnavailable(msg string, retryable bool, cause error) error {
	return &Error{Kind: KindProviderUnavailable, Retryable: retryable, Msg: msg, Err: cause}
}

func ChunkingEmpty() error {
	return &Error{Kind: KindChunkingEmpty, Msg: "chunking produced 0 chunks"}
}

func Persistence(msg string, retryable bool, cause error) error {
	return &Error{Kind: KindPersistence, Retryable: retryable, Msg: msg, Err: cause}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether the outermost classified error in the chain
// is marked retryable. Unclassified errors never retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
