package settlement

import "errors"

var (
	// ErrTimeout indicates the escrow did not answer within the deadline; the outcome is unknown
	ErrTimeout = errors.New("settlement request timeout")

	// ErrUnavailable indicates the escrow could not be reached; no side effect occurred
	ErrUnavailable = errors.New("settlement service unavailable")

	// ErrRejected indicates the escrow refused or failed the operation
	ErrRejected = errors.New("settlement request rejected")

	// ErrUnsupported indicates the escrow does not offer the operation
	ErrUnsupported = errors.New("settlement operation not supported")

	// ErrInvalidResponse indicates the escrow answered with an unusable payload
	ErrInvalidResponse = errors.New("invalid response from settlement service")

	// ErrInvalidAddress indicates a malformed contract address
	ErrInvalidAddress = errors.New("invalid contract address")

	// ErrInvalidAmount indicates a stake that rounds to zero in the smallest native unit
	ErrInvalidAmount = errors.New("invalid stake amount")
)
