// Package service implements the market lifecycle: odds derivation, bet placement and course resolution.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInconsistentState   Kind = "inconsistent_state"
)

// Machine-readable reason codes
const (
	ReasonValidation               = "validation"
	ReasonUserNotFound             = "user_not_found"
	ReasonCourseNotFound           = "course_not_found"
	ReasonThresholdNotFound        = "threshold_not_found"
	ReasonMarketClosed             = "market_closed"
	ReasonNoGrades                 = "no_grades"
	ReasonGradeAlreadySet          = "grade_already_set"
	ReasonContractDeployFailed     = "contract_deploy_failed"
	ReasonContractUnrecorded       = "contract_deployed_but_unrecorded"
	ReasonStakePlacementFailed     = "stake_placement_failed"
	ReasonStakePlacedButUnrecorded = "stake_placed_but_unrecorded"
	ReasonStakeOutcomeUnknown      = "stake_outcome_unknown"
	ReasonUpstreamTimeout          = "upstream_timeout"
	ReasonUpstreamUnavailable      = "upstream_unavailable"
	ReasonPartialFailure           = "partial_failure"
	ReasonSettlementUnrecorded     = "settlement_unrecorded"
	ReasonSettlementConflict       = "settlement_conflict"
)

// OperationError is a classified failure of a lifecycle operation
type OperationError struct {
	Kind   Kind
	Reason string
	Op     string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(kind Kind, reason, op string, err error) *OperationError {
	return &OperationError{Kind: kind, Reason: reason, Op: op, Err: err}
}

func validationError(op, format string, args ...interface{}) *OperationError {
	return opError(KindValidation, ReasonValidation, op, fmt.Errorf(format, args...))
}

// AsOperationError extracts an OperationError from err
func AsOperationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// ReasonOf returns the reason code of err, or an empty string for unclassified errors
func ReasonOf(err error) string {
	if opErr, ok := AsOperationError(err); ok {
		return opErr.Reason
	}
	return ""
}

// KindOf returns the kind of err, or an empty string for unclassified errors
func KindOf(err error) Kind {
	if opErr, ok := AsOperationError(err); ok {
		return opErr.Kind
	}
	return ""
}
