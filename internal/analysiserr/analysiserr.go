// Package analysiserr defines the fatal, non-soundness-preserving
// errors the analysis core can raise (spec.md §4.8's "recoverable" and
// "fatal" tiers). Terminal outcomes (divide by zero, array out of
// bounds, ...) are modelled as values in package terminal, never here:
// this package is only for errors a caller must stop and report, the
// same sentinel-plus-wrap idiom the teacher's VM uses for its own
// internal faults (funvibe-funxy/internal/vm/vm.go).
package analysiserr

import "errors"

var (
	// ErrUnsupportedOpcode is raised when a Record names a Tag the
	// transfer function does not recognise (spec.md §4.6).
	ErrUnsupportedOpcode = errors.New("unsupported opcode")

	// ErrStackUnderflow is raised when an opcode pops more operands
	// than the current frame's stack holds.
	ErrStackUnderflow = errors.New("operand stack underflow")

	// ErrUnboundName is raised when a name referenced by a frame, the
	// heap, or the stack is absent from the constraint store, which
	// the store's own invariant says can never happen in a correct
	// analysis (spec.md §3).
	ErrUnboundName = errors.New("unbound value name")

	// ErrStackHeightMismatch is raised when two states reaching the
	// same program point disagree on frame count or per-frame stack
	// depth (spec.md §4.4's "Failure model": a fatal analysis defect,
	// never a program property).
	ErrStackHeightMismatch = errors.New("stack height mismatch at join")

	// ErrIterationBudgetExceeded names a worklist that did not reach a
	// fixed point within config.Config.MaxIterations (spec.md §5, §4.8's
	// "recoverable per-method errors"). driver.Analyze does not return
	// it: it reports budget exhaustion as a Result with FixedPoint false.
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")

	// ErrUnknownDomain is raised when config.Config.Domain names
	// neither "sign" nor "interval".
	ErrUnknownDomain = errors.New("unknown abstract domain")

	// ErrMalformedOpcode is raised when a Record's Tag is recognised
	// but one of its operand fields (e.g. Op on a Binary/Ifz/If
	// record) does not decode into a value the transfer function
	// knows how to act on — a malformed record, distinct from
	// ErrUnsupportedOpcode's "the Tag itself is unrecognised".
	ErrMalformedOpcode = errors.New("malformed opcode record")
)
