package identity

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors returned by Entity validation, matching the taxonomy of
// entity.rs's Error enum. Each carries no payload of its own; callers that
// need the offending value use errors.Is/errors.As against the wrapping
// types below.
var (
	ErrSerializationFailed       = errors.New("identity: serialization failed")
	ErrInvalidUTF8               = errors.New("identity: invalid utf8")
	ErrInvalidBufferEncoding     = errors.New("identity: invalid buffer encoding")
	ErrInvalidHash               = errors.New("identity: invalid hash")
	ErrInvalidURN                = errors.New("identity: invalid urn")
	ErrSignatureAlreadyPresent   = errors.New("identity: signature already present for this key")
	ErrInvalidData               = errors.New("identity: invalid entity data")
	ErrKeyNotPresent             = errors.New("identity: key not present in entity")
	ErrUserNotPresent            = errors.New("identity: user not present in entity's certifiers")
	ErrUserKeyNotPresent         = errors.New("identity: key not present in user's key set")
	ErrSignatureMissing          = errors.New("identity: signature missing")
	ErrSignatureDecodingFailed   = errors.New("identity: signature decoding failed")
	ErrSignatureVerificationFailed = errors.New("identity: signature verification failed")
	ErrResolutionFailed          = errors.New("identity: resolution failed")
)

// UpdateVerificationErrorKind discriminates why a revision update failed
// to validate against its parent, matching entity.rs's
// UpdateVerificationError.
type UpdateVerificationErrorKind int

const (
	NonMonotonicRevision UpdateVerificationErrorKind = iota
	WrongParentHash
	NoPreviousQuorum
	NoCurrentQuorum
)

func (k UpdateVerificationErrorKind) String() string {
	switch k {
	case NonMonotonicRevision:
		return "non_monotonic_revision"
	case WrongParentHash:
		return "wrong_parent_hash"
	case NoPreviousQuorum:
		return "no_previous_quorum"
	case NoCurrentQuorum:
		return "no_current_quorum"
	default:
		return "unknown"
	}
}

// UpdateVerificationError reports a single check_update failure.
type UpdateVerificationError struct {
	Kind UpdateVerificationErrorKind
}

func (e *UpdateVerificationError) Error() string {
	return fmt.Sprintf("identity: update verification failed: %s", e.Kind)
}

// HistoryVerificationErrorKind discriminates why a revision chain failed
// check_history, matching entity.rs's HistoryVerificationError.
type HistoryVerificationErrorKind int

const (
	EmptyHistory HistoryVerificationErrorKind = iota
	ErrorAtRevision
	UpdateErrorAt
)

// HistoryVerificationError reports a single check_history failure, tagged
// with the revision it was attributed to. For ErrorAtRevision, the tagged
// revision is the *current* (later) entity's revision even when the
// underlying Err is a validity fault in the *previous* (earlier) one — this
// mirrors entity.rs's check_history exactly — a quirky but deliberately
// preserved behavior (see DESIGN.md, Open Question decisions).
type HistoryVerificationError struct {
	Kind     HistoryVerificationErrorKind
	Revision uint64
	Err      error
}

func (e *HistoryVerificationError) Error() string {
	switch e.Kind {
	case EmptyHistory:
		return "identity: empty revision history"
	case ErrorAtRevision:
		return fmt.Sprintf("identity: validity error at revision %d: %v", e.Revision, e.Err)
	case UpdateErrorAt:
		return fmt.Sprintf("identity: update error at revision %d: %v", e.Revision, e.Err)
	default:
		return "identity: history verification failed"
	}
}

func (e *HistoryVerificationError) Unwrap() error { return e.Err }
