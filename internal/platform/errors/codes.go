// Package errors provides structured engine errors with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Journal usage errors. These are programmer defects and terminate the
	// owning game session.
	CodeTransactionTokenMismatch Code = "TRANSACTION_TOKEN_MISMATCH"
	CodeTransactionNotOpen       Code = "TRANSACTION_NOT_OPEN"
	CodeJournalDetached          Code = "JOURNAL_DETACHED"
	CodeJournalFaulted           Code = "JOURNAL_FAULTED"
	CodeJournalScopeOpen         Code = "JOURNAL_SCOPE_OPEN"
	CodeScopeOutOfOrder          Code = "SCOPE_OUT_OF_ORDER"

	// Sequencer errors
	CodeSequencerNotSuspended Code = "SEQUENCER_NOT_SUSPENDED"
	CodeSequencerReentered    Code = "SEQUENCER_REENTERED"
	CodeSequencerCompleted    Code = "SEQUENCER_COMPLETED"
	CodeSequencerRetryLimit   Code = "SEQUENCER_RETRY_LIMIT"
	CodeSequencerUnknownStep  Code = "SEQUENCER_UNKNOWN_STEP"
	CodeSequencerAskConflict  Code = "SEQUENCER_ASK_CONFLICT"

	// Search errors
	CodeSearchCrossCheckMismatch Code = "SEARCH_CROSS_CHECK_MISMATCH"
	CodeSearchNoCandidates       Code = "SEARCH_NO_CANDIDATES"

	// History errors
	CodeHistorySequenceGap Code = "HISTORY_SEQUENCE_GAP"
	CodeHistoryChainBroken Code = "HISTORY_CHAIN_BROKEN"

	// Seat errors
	CodeSeatGrantInvalid  Code = "SEAT_GRANT_INVALID"
	CodeSeatGrantExpired  Code = "SEAT_GRANT_EXPIRED"
	CodeSeatGrantMismatch Code = "SEAT_GRANT_MISMATCH"

	// Generic errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeSessionTerminated Code = "SESSION_TERMINATED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidArgument,
		CodeSeatGrantInvalid,
		CodeSeatGrantMismatch,
		CodeSequencerUnknownStep:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSequencerNotSuspended,
		CodeSequencerCompleted,
		CodeSessionTerminated,
		CodeSearchNoCandidates,
		CodeJournalScopeOpen:
		return codes.FailedPrecondition

	// Unauthenticated - expired or missing credentials
	case CodeSeatGrantExpired:
		return codes.Unauthenticated

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// DataLoss - persisted history no longer verifies
	case CodeHistorySequenceGap,
		CodeHistoryChainBroken:
		return codes.DataLoss

	default:
		return codes.Internal
	}
}

// Fatal reports whether the code signals a broken stack discipline or an
// algorithm defect. Sessions stop accepting work after a fatal error.
func (c Code) Fatal() bool {
	switch c {
	case CodeTransactionTokenMismatch,
		CodeTransactionNotOpen,
		CodeScopeOutOfOrder,
		CodeJournalDetached,
		CodeJournalFaulted,
		CodeSequencerReentered,
		CodeSequencerAskConflict,
		CodeSearchCrossCheckMismatch:
		return true
	default:
		return false
	}
}
