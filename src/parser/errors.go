package parser

import (
	"errors"
	"fmt"
)

// Rejection is a machine readable reason for a message that was not parsed.
type Rejection string

const (
	RejectionNone                Rejection = ""
	RejectionEmptyContent        Rejection = "empty_content"
	RejectionHeaderTokenMismatch Rejection = "header_token_mismatch"
	RejectionTestIndicator       Rejection = "test_indicator"
	RejectionContentTooShort     Rejection = "content_too_short"
	RejectionNoSetups            Rejection = "no_setups"
)

var (
	// ErrValidation marks input that does not look like an A+ setups message.
	ErrValidation = errors.New("message is not an A+ setups message")
	// ErrDateExtraction marks a header without a usable trading day. It is always recovered.
	ErrDateExtraction = errors.New("trading day not found in header")
	// ErrStructural marks a line that did not yield a trigger and at least one target.
	ErrStructural = errors.New("setup line has fewer than two prices")
	// ErrInvariant marks a setup whose trigger and targets are inconsistent.
	ErrInvariant = errors.New("setup invariant violated")
	// ErrDuplicateSetup marks a setup already seen in the same message.
	ErrDuplicateSetup = errors.New("duplicate setup within message")
)

// IssueKind names the error class of a recovered problem.
type IssueKind string

const (
	IssueStructural IssueKind = "structural_parse_error"
	IssueInvariant  IssueKind = "invariant_violation"
	IssueDuplicate  IssueKind = "duplicate_within_message"
	IssueDate       IssueKind = "date_extraction_failure"
)

// Issue is a problem that was recovered locally while parsing a message.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Ticker string    `json:"ticker,omitempty"`
	Line   string    `json:"line,omitempty"`
	Detail string    `json:"detail"`
}

// ValidationError carries the rejection reason of an invalid message.
type ValidationError struct {
	Reason Rejection
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvariantViolationError describes why a setup was discarded.
type InvariantViolationError struct {
	Ticker  string
	Trigger float64
	Target  float64
	Reason  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s trigger=%.2f target=%.2f: %s", ErrInvariant.Error(), e.Ticker, e.Trigger, e.Target, e.Reason)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariant }
