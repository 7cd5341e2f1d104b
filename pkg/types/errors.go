package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for fail-fast conditions.
var (
	// ErrConcurrentPublish means another publish holds the lease for the same
	// as-of window. Callers retry later; nothing was written.
	ErrConcurrentPublish = errors.New("concurrent publish in flight for this as-of window")

	// ErrSnapshotNotFound is returned by provider reads for unknown snapshot IDs.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrPointerConflict means the current pointer moved between read and swap.
	ErrPointerConflict = errors.New("current pointer changed concurrently")
)

// GrainViolation reports corrupt upstream data: either duplicate line keys at a
// grain that promises one row per key, or overlapping assignment intervals.
// Always fatal; the cycle aborts before any write.
type GrainViolation struct {
	Relation string // which input relation violated its grain
	Key      string // offending key rendered for operators
	Detail   string
}

func (e *GrainViolation) Error() string {
	return fmt.Sprintf("grain violation in %s at %s: %s", e.Relation, e.Key, e.Detail)
}

// RuleVersionUnknown reports an evaluate request against an unregistered rule
// version. Fatal; publishing under a version that was never shipped would make
// the snapshot unreproducible.
type RuleVersionUnknown struct {
	Version RuleVersion
}

func (e *RuleVersionUnknown) Error() string {
	return fmt.Sprintf("rule version %q is not registered", e.Version)
}

// OverlapError describes two assignment intervals for one FLOC that overlap in
// time. Wrapped inside a GrainViolation by the grain resolver.
type OverlapError struct {
	FlocID string
	A, B   time.Time // the two conflicting starts
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("floc %s has overlapping assignment intervals starting %s and %s",
		e.FlocID, e.A.Format(time.RFC3339), e.B.Format(time.RFC3339))
}
