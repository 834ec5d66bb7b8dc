package sensorbridge

import (
	"github.com/akhenakh/sensorbridge/sensor"
)

// Lifecycle is implemented by every sink and command handler,
// Start and Stop must be idempotent.
type Lifecycle interface {
	Start() error
	Stop()
}

// AttributeListener receives every new attribute directory.
// AcceptAttributes must not block, the directory must not be modified.
type AttributeListener interface {
	AcceptAttributes(dir sensor.Directory)
}

// Sink is an upload target for decoded records.
type Sink interface {
	Lifecycle
	AttributeListener

	Name() string

	// AcceptRecord hands over a record, it must return immediately,
	// records for devices without a route are discarded.
	AcceptRecord(key sensor.AppDeviceID, data *sensor.Data)
}

// Commander handles the command port traffic of an application.
type Commander interface {
	Lifecycle
	AttributeListener

	// HandleResponse must return immediately.
	HandleResponse(up sensor.Uplink)
}

// Publisher receives decoded records.
type Publisher interface {
	Publish(key sensor.AppDeviceID, data *sensor.Data)
}
