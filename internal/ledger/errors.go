package ledger

import (
	"errors"
	"fmt"
)

// Boundary errors surfaced to callers of Submit.
var (
	// ErrSubmissionRejected is returned when a program fails and no writes were committed.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrSubmissionTimeout is returned when the context expires before a commit is confirmed.
	// The outcome is unknown and callers must not assume success.
	ErrSubmissionTimeout = errors.New("submission timeout")

	// ErrMissingSignature is returned when a signer account has no signature.
	ErrMissingSignature = errors.New("missing required signature")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAlreadyProcessed is returned when the same signed transaction is submitted twice.
	ErrAlreadyProcessed = errors.New("transaction already processed")
)

// Runtime errors returned by InvokeContext. They abort the transaction.
var (
	ErrUnknownProgram       = errors.New("unknown program")
	ErrAccountNotLoaded     = errors.New("account not referenced by transaction")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrReadonlyAccount      = errors.New("write to read-only account")
	ErrIllegalOwner         = errors.New("account owned by another program")
	ErrPrivilegeEscalation  = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth            = errors.New("cross-program invocation call depth too deep")
)

// RejectedError carries the program error that aborted a submission.
// errors.Is matches both ErrSubmissionRejected and the wrapped program error.
type RejectedError struct {
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmissionRejected, e.Err)
}

// Unwrap returns the program error.
func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSubmissionRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrSubmissionRejected
}
