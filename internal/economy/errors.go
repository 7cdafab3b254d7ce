package economy

import (
	"errors"
	"fmt"
)

// ErrInvariant matches every *InvariantError via errors.Is.
var ErrInvariant = errors.New("invariant violation")

var (
	// ErrOverExpenditure is returned when more is expended than is unreserved.
	ErrOverExpenditure = errors.New("over-expenditure")

	// ErrWantUnderflow is returned when a want operation would leave the
	// ledger with nothing (or less than nothing) to draw on.
	ErrWantUnderflow = errors.New("want underflow")

	// ErrRealizeMismatch is returned when a realization disagrees in sign
	// or magnitude with the outstanding expectation.
	ErrRealizeMismatch = errors.New("realization does not match expectation")
)

// InvariantError reports corrupted books: a broken ledger identity, a negative
// quantity where none is allowed, or an actor referenced but not stored.
// It is never a normal outcome and aborts the current day.
type InvariantError struct {
	Ledger string // "property", "want", "actor", "market"
	ID     uint64 // offending ledger/actor id, 0 if unknown
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("invariant violation: %s %d: %s: %s", e.Ledger, e.ID, e.Op, e.Detail)
	}
	return fmt.Sprintf("invariant violation: %s: %s: %s", e.Ledger, e.Op, e.Detail)
}

// Is lets errors.Is(err, ErrInvariant) match.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

// WithID returns a copy of the error stamped with the owning id.
func (e *InvariantError) WithID(id uint64) *InvariantError {
	c := *e
	c.ID = id
	return &c
}

func mustNonNegative(ledger, op string, qty float64) {
	if qty < 0 {
		panic(&InvariantError{
			Ledger: ledger,
			Op:     op,
			Detail: fmt.Sprintf("negative quantity %g", qty),
		})
	}
}
