// Package consensuserrors defines the closed set of error kinds the
// consensus engine can raise, with one constructor per kind and
// errors.Is/As support.
package consensuserrors

import (
	"errors"
	"fmt"
)

// Kind identifies which of the named error variants a ConsensusError is.
type Kind string

const (
	KindInsufficientEmotionalFitness Kind = "insufficient_emotional_fitness"
	KindInsufficientStake            Kind = "insufficient_stake"
	KindByzantineFailure             Kind = "byzantine_failure"
	KindValidatorNotFound            Kind = "validator_not_found"
	KindInvalidBlock                 Kind = "invalid_block"
	KindInvalidVote                  Kind = "invalid_vote"
	KindRoundTimeout                 Kind = "round_timeout"
	KindNetworkPartition             Kind = "network_partition"
	KindSignatureVerificationFailed  Kind = "signature_verification_failed"
	KindBiometricValidationFailed    Kind = "biometric_validation_failed"
	KindCommitteeSelectionFailed     Kind = "committee_selection_failed"
	KindForkDetected                 Kind = "fork_detected"
	KindStorageError                 Kind = "storage_error"
	KindConfigError                  Kind = "config_error"
	KindAlreadyRunning               Kind = "already_running"
	KindNotRunning                   Kind = "not_running"
	KindInternal                     Kind = "internal"
)

// ConsensusError is the single error type the engine and its collaborators
// return. Its Kind identifies the named variant; Message is a
// human-readable, already-formatted description.
type ConsensusError struct {
	Kind    Kind
	Message string
	wrapped error
}

func (e *ConsensusError) Error() string { return e.Message }

func (e *ConsensusError) Unwrap() error { return e.wrapped }

// Is reports whether target is a *ConsensusError with the same Kind,
// allowing errors.Is(err, consensuserrors.ForkDetected(0)) style
// checks against the kind alone when Message is irrelevant.
func (e *ConsensusError) Is(target error) bool {
	var other *ConsensusError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func new_(kind Kind, format string, args ...any) *ConsensusError {
	return &ConsensusError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InsufficientEmotionalFitness(score, threshold uint8) *ConsensusError {
	return new_(KindInsufficientEmotionalFitness, "insufficient emotional fitness: score %d below threshold %d", score, threshold)
}

func InsufficientStake(stake, minimum uint64) *ConsensusError {
	return new_(KindInsufficientStake, "insufficient stake: %d below minimum %d", stake, minimum)
}

func ByzantineFailure(reason string) *ConsensusError {
	return new_(KindByzantineFailure, "byzantine failure: %s", reason)
}

func ValidatorNotFound(id string) *ConsensusError {
	return new_(KindValidatorNotFound, "validator not found: %s", id)
}

func InvalidBlock(reason string) *ConsensusError {
	return new_(KindInvalidBlock, "invalid block: %s", reason)
}

func InvalidVote(reason string) *ConsensusError {
	return new_(KindInvalidVote, "invalid vote: %s", reason)
}

func RoundTimeout(durationMs uint64) *ConsensusError {
	return new_(KindRoundTimeout, "round timed out after %dms", durationMs)
}

func NetworkPartition() *ConsensusError {
	return new_(KindNetworkPartition, "network partition detected")
}

func SignatureVerificationFailed(reason string) *ConsensusError {
	return new_(KindSignatureVerificationFailed, "signature verification failed: %s", reason)
}

func BiometricValidationFailed(reason string) *ConsensusError {
	return new_(KindBiometricValidationFailed, "biometric validation failed: %s", reason)
}

func CommitteeSelectionFailed(reason string) *ConsensusError {
	return new_(KindCommitteeSelectionFailed, "committee selection failed: %s", reason)
}

func ForkDetected(height uint64) *ConsensusError {
	return new_(KindForkDetected, "fork detected at height %d", height)
}

func StorageError(message string) *ConsensusError {
	return new_(KindStorageError, "storage error: %s", message)
}

func ConfigError(message string) *ConsensusError {
	return new_(KindConfigError, "configuration error: %s", message)
}

func AlreadyRunning() *ConsensusError {
	return new_(KindAlreadyRunning, "consensus engine is already running")
}

func NotRunning() *ConsensusError {
	return new_(KindNotRunning, "consensus engine is not running")
}

func Internal(message string) *ConsensusError {
	return new_(KindInternal, "internal error: %s", message)
}
