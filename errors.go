package sensorbridge

import (
	"errors"
	"fmt"
)

// ErrRegistryTimeout is reported when a registry does not answer within the refresh timeout.
var ErrRegistryTimeout = errors.New("registry query timed out")

// RegistryQueryError is a failed registry query for one application.
type RegistryQueryError struct {
	AppID string
	Err   error
}

func (e *RegistryQueryError) Error() string {
	return fmt.Sprintf("registry query for application %s failed: %v", e.AppID, e.Err)
}

func (e *RegistryQueryError) Unwrap() error {
	return e.Err
}

// SinkDeliveryError is a record or snapshot a sink could not accept.
// It never travels past the fan-out, it is only logged and counted.
type SinkDeliveryError struct {
	Sink string
	Op   string
	Err  error
}

func (e *SinkDeliveryError) Error() string {
	return fmt.Sprintf("sink %s failed to accept %s: %v", e.Sink, e.Op, e.Err)
}

func (e *SinkDeliveryError) Unwrap() error {
	return e.Err
}
