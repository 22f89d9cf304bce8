package bridge

import (
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/satconf"
)

// Command actions.
const (
	ActionTune   = "tune"
	ActionStop   = "stop"
	ActionStatus = "status"
)

// CommandMessage arrives on satlink/{site}/frontend/{name}/command.
type CommandMessage struct {
	// ID correlates the command with its acks.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is tune, stop or status.
	Action string `json:"action"`

	// MuxID names the mux being tuned or stopped.
	MuxID string `json:"mux_id,omitempty"`

	// ElementID forces an antenna position instead of selecting by network.
	ElementID string `json:"element_id,omitempty"`

	Tuning     *dvb.Tuning `json:"tuning,omitempty"`
	SkipDiseqc bool        `json:"skip_diseqc,omitempty"`

	// Source is free text for the logs, e.g. "epg-grabber".
	Source string `json:"source,omitempty"`
}

// AckStatus is the state reported in an ack.
type AckStatus string

const (
	// AckPending means the rotor is moving; a final ack follows.
	AckPending AckStatus = "pending"

	// AckLocked means the frontend locked on the mux.
	AckLocked AckStatus = "locked"

	// AckStopped means the mux was released.
	AckStopped AckStatus = "stopped"

	// AckAccepted is the reply to a status request.
	AckAccepted AckStatus = "accepted"

	// AckCancelled means a later tune on the same frontend superseded this one.
	AckCancelled AckStatus = "cancelled"

	// AckFailed carries an error.
	AckFailed AckStatus = "failed"
)

// Codes for failures the bridge detects itself. Tuning failures use the
// satconf.Code* values.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeUnknownAction  = "UNKNOWN_ACTION"
)

// AckMessage is published on satlink/{site}/frontend/{name}/ack.
type AckMessage struct {
	CommandID string          `json:"command_id"`
	Timestamp time.Time       `json:"timestamp"`
	Frontend  string          `json:"frontend"`
	Status    AckStatus       `json:"status"`
	MuxID     string          `json:"mux_id,omitempty"`
	Result    *satconf.Result `json:"result,omitempty"`
	Error     *AckError       `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventMessage is published on satlink/{site}/frontend/{name}/event for
// every finished tuning attempt.
type EventMessage struct {
	AttemptID             string        `json:"attempt_id"`
	Timestamp             time.Time     `json:"timestamp"`
	SatConf               string        `json:"satconf"`
	MuxID                 string        `json:"mux_id"`
	ElementID             string        `json:"element_id,omitempty"`
	Tuning                dvb.Tuning    `json:"tuning"`
	State                 satconf.State `json:"state"`
	Band                  int           `json:"band"`
	IntermediateFrequency uint32        `json:"intermediate_frequency"`
	GraceSeconds          int           `json:"grace_seconds,omitempty"`
	RotorDelta            float64       `json:"rotor_delta,omitempty"`
	Commands              int           `json:"commands"`
	DurationMS            int64         `json:"duration_ms"`
	Error                 *AckError     `json:"error,omitempty"`
}

func newEventMessage(o satconf.Outcome) EventMessage {
	msg := EventMessage{
		AttemptID:             o.AttemptID,
		Timestamp:             o.Finished.UTC(),
		SatConf:               o.SatConf,
		MuxID:                 o.MuxID,
		ElementID:             o.ElementID,
		Tuning:                o.Tuning,
		State:                 o.State,
		Band:                  o.Band,
		IntermediateFrequency: o.IntermediateFrequency,
		GraceSeconds:          o.GraceSeconds,
		RotorDelta:            o.RotorDelta,
		Commands:              o.Commands,
		DurationMS:            o.Finished.Sub(o.Started).Milliseconds(),
	}
	if o.Err != nil {
		msg.Error = &AckError{Code: satconf.ErrorCode(o.Err), Message: o.Err.Error()}
	}
	return msg
}

// StateMessage is the retained frontend snapshot on
// satlink/{site}/frontend/{name}/state.
type StateMessage struct {
	satconf.Status
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the overall bridge health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload on satlink/{site}/health.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Site          string       `json:"site"`
	Version       string       `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Frontends     int          `json:"frontends"`
	Active        int          `json:"active"`
}
