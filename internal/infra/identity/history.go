package identity

import (
	"iter"

	"github.com/hashicorp/go-multierror"
)

// Entities adapts a slice into the iter.Seq[*Entity[T]] history verification
// expects. Convenience for callers (e.g. the CLI) that already hold every
// revision in memory; HistoryVerifier itself never requires this.
func Entities[T any](history []*Entity[T]) iter.Seq[*Entity[T]] {
	return func(yield func(*Entity[T]) bool) {
		for _, e := range history {
			if !yield(e) {
				return
			}
		}
	}
}

// HistoryVerifier validates an entity revision chain head-to-tail without
// materializing more than two revisions at a time. Grounded on entity.rs's
// Entity::check_history.
type HistoryVerifier[T any] struct {
	resolver Resolver[T]
}

// NewHistoryVerifier constructs a verifier that resolves certifying users
// through resolver.
func NewHistoryVerifier[T any](resolver Resolver[T]) *HistoryVerifier[T] {
	return &HistoryVerifier[T]{resolver: resolver}
}

// Check validates history, an ordered stream yielding newest (the head)
// first, without materializing more than the current and previous revision
// at a time — history may be backed by a lazy git-log walk as easily as an
// in-memory slice (see Entities for the latter). It stops at the first
// fault. The validity check for each revision after the head is tagged with
// the *current* (later) revision's number rather than its own — entity.rs's
// check_history does this too, tagging the previous entity's validity fault
// with current.revision() — a quirky but deliberately preserved behavior
// (see DESIGN.md, Open Question decisions).
func (h *HistoryVerifier[T]) Check(history iter.Seq[*Entity[T]]) error {
	var current *Entity[T]
	sawAny := false
	var faultErr error

	for rev := range history {
		if current == nil {
			sawAny = true
			current = rev
			if err := CheckValidity(current, h.resolver); err != nil {
				faultErr = &HistoryVerificationError{Kind: ErrorAtRevision, Revision: current.Revision(), Err: err}
				break
			}
			continue
		}
		previous := rev
		if err := CheckValidity(previous, h.resolver); err != nil {
			faultErr = &HistoryVerificationError{Kind: ErrorAtRevision, Revision: current.Revision(), Err: err}
			break
		}
		if err := CheckUpdate(current, previous); err != nil {
			faultErr = &HistoryVerificationError{Kind: UpdateErrorAt, Revision: current.Revision(), Err: err}
			break
		}
		current = previous
	}

	if !sawAny {
		return &HistoryVerificationError{Kind: EmptyHistory}
	}
	return faultErr
}

// CheckAll runs the same validation as Check but does not stop at the first
// fault: it walks the entire chain and returns every fault found, aggregated
// with go-multierror. Supplemented relative to entity.rs's check_history
// (which short-circuits): useful for diagnostics and admin tooling that
// wants a full report of a broken chain, not just its first break.
func (h *HistoryVerifier[T]) CheckAll(history iter.Seq[*Entity[T]]) error {
	var result *multierror.Error
	var current *Entity[T]
	sawAny := false

	for rev := range history {
		if current == nil {
			sawAny = true
			current = rev
			if err := CheckValidity(current, h.resolver); err != nil {
				result = multierror.Append(result, &HistoryVerificationError{Kind: ErrorAtRevision, Revision: current.Revision(), Err: err})
			}
			continue
		}
		previous := rev
		if err := CheckValidity(previous, h.resolver); err != nil {
			result = multierror.Append(result, &HistoryVerificationError{Kind: ErrorAtRevision, Revision: current.Revision(), Err: err})
		}
		if err := CheckUpdate(current, previous); err != nil {
			result = multierror.Append(result, &HistoryVerificationError{Kind: UpdateErrorAt, Revision: current.Revision(), Err: err})
		}
		current = previous
	}

	if !sawAny {
		return &HistoryVerificationError{Kind: EmptyHistory}
	}
	return result.ErrorOrNil()
}
