package weather

import (
	"fmt"
)

// NetworkError reports a failed exchange with the provider: transport
// failures (timeout, DNS, refused connection) and non-success HTTP statuses.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a payload that could not be parsed into a ForecastResult.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode forecast: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
