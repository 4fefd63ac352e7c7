package forecast

import "errors"

var (
	// ErrNoGrades indicates there is no history to forecast from
	ErrNoGrades = errors.New("no grades available")

	// ErrTimeout indicates the regression service did not answer within the deadline
	ErrTimeout = errors.New("forecast request timeout")

	// ErrUnavailable indicates the regression service could not be reached
	ErrUnavailable = errors.New("forecast service unavailable")

	// ErrRejected indicates the regression service answered with a non-success status
	ErrRejected = errors.New("forecast service rejected request")

	// ErrInvalidResponse indicates the response body could not be understood
	ErrInvalidResponse = errors.New("invalid response from forecast service")
)
