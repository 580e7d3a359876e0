package comfoconnect

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a request is made without an open connection, or when the
	// connection dropped while waiting for the reply.
	ErrNotConnected = errors.New("not connected to bridge")

	// ErrTimeout is returned when the bridge did not answer in time.
	ErrTimeout = errors.New("timeout waiting for bridge")

	// ErrNotAllowed matches a NOT_ALLOWED result, meaning the app is not registered or the pin
	// was wrong.
	ErrNotAllowed = errors.New("not allowed")

	// ErrOtherSession matches an OTHER_SESSION result.
	ErrOtherSession = errors.New("another session is active")
)

// ResultError is returned when the gateway answers with a non-OK result.
type ResultError struct {
	Operation   OperationType
	Result      GatewayResult
	Description string
}

func (e *ResultError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%v failed: %v (%v)", e.Operation, e.Result, e.Description)
	}
	return fmt.Sprintf("%v failed: %v", e.Operation, e.Result)
}

func (e *ResultError) Is(target error) bool {
	switch target {
	case ErrNotAllowed:
		return e.Result == ResultNotAllowed
	case ErrOtherSession:
		return e.Result == ResultOtherSession
	}
	return false
}

// RmiError is returned when the ventilation unit rejects an RMI call.
type RmiError struct {
	Code uint32
}

func (e *RmiError) Error() string {
	return fmt.Sprintf("rmi error %d", e.Code)
}
