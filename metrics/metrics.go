package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ViaLabel       = "via"
	ReceivedViaGW  = "GW"
	ReceivedViaTTN = "TTN"

	EncodingLabel = "encoding"
	SinkLabel     = "sink"
	ResultLabel   = "result"
	AppLabel      = "app"

	ResultOK    = "ok"
	ResultError = "error"
)

var (
	MsgReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "received_msg_total",
			Help:      "The total number of received uplinks",
		},
		[]string{ViaLabel},
	)

	DecodeErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "decode_error_total",
			Help:      "The total number of payloads that could not be decoded",
		},
		[]string{EncodingLabel},
	)

	RecordCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "record_total",
			Help:      "The total number of decoded records sent to the sinks",
		},
	)

	CommandCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "command_response_total",
			Help:      "The total number of command responses received",
		},
	)

	SinkErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "sink_error_total",
			Help:      "The total number of deliveries a sink failed to accept",
		},
		[]string{SinkLabel},
	)

	UploadCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "upload_total",
			Help:      "The total number of uploads per sink",
		},
		[]string{SinkLabel, ResultLabel},
	)

	RegistryRefreshCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "registry_refresh_total",
			Help:      "The total number of registry queries per application",
		},
		[]string{AppLabel, ResultLabel},
	)

	InsertCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sensorbridge",
			Name:      "insert_total",
			Help:      "The total number of inserts in the archive",
		},
	)
)
