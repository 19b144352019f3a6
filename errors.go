package xsort

import "fmt"

// InsufficientMemoryError is raised when a RunCreator or RunMerger cannot
// be constructed, or a RunMerger cannot be initialized, within the memory
// budget it was given (spec.md §7 "InsufficientMemory").
type InsufficientMemoryError struct {
	// Component names the object that failed to fit its budget:
	// "RunCreator", "RunMerger", or "recursive merge".
	Component string
	// Requested is the minimum number of bytes the component needed.
	Requested int64
	// Available is the memory budget that was provided.
	Available int64
}

func (e *InsufficientMemoryError) Error() string {
	return fmt.Sprintf("xsort: insufficient memory for %s: need at least %d bytes, have %d",
		e.Component, e.Requested, e.Available)
}

// ContractViolationError marks misuse of the sorter/creator/merger state
// machines: pushing after the result has been computed, reading Current
// while Empty, calling an operation from a state that does not permit it.
// The source uses `assert()` for these (checked in debug builds, undefined
// behavior in release); Go has no such build-mode split, so a panic
// carrying this type is the direct translation (spec.md §7
// "ContractViolation").
type ContractViolationError struct {
	// Op is the operation that was attempted.
	Op string
	// State describes why it was invalid.
	State string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("xsort: contract violation calling %s: %s", e.Op, e.State)
}

// OrderingViolationError is raised by the order-checking merge frontier
// (Config.OrderChecking) when it observes an inversion in merger output
// (spec.md §7 "OrderingViolation").
type OrderingViolationError struct {
	// Position is the zero-based index of Next in the output stream.
	Position uint64
	Prev, Next any
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("xsort: ordering violation at output position %d: %v then %v", e.Position, e.Prev, e.Next)
}

// wrapDiskError wraps an I/O error returned by a block.Manager with the
// operation that failed. It is never retried (spec.md §7 "Propagation");
// callers surface it to their own caller synchronously.
func wrapDiskError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("xsort: block manager %s: %w", op, err)
}

func contractViolation(op, state string) error {
	return &ContractViolationError{Op: op, State: state}
}
