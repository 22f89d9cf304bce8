package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/satlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/satlink-core/internal/satconf"
)

const (
	// ackQoS is used for acks and events; state and health are retained.
	ackQoS = 1

	// tuneTimeout bounds the synchronous part of a tune command, the
	// DiSEqC sequence and the frontend lock.
	tuneTimeout = 30 * time.Second
)

// Bridge exposes a satconf.Manager on MQTT. It accepts tune, stop and
// status commands per frontend, acknowledges them, and publishes every
// finished attempt as an event plus a retained state snapshot.
//
// Bridge implements satconf.Observer; pass it (or a fan-out containing
// it) as the manager's observer so events are published.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	satconfs SatConfs
	mqtt     MQTTClient
	topics   mqtt.Topics
	health   *HealthReporter

	// stopMu orders wg.Add in handleCommand against wg.Wait in Stop.
	stopMu   sync.Mutex
	stopping bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// SatConfs looks up the SatConfs a bridge controls. *satconf.Manager
// implements it.
type SatConfs interface {
	SatConf(name string) (*satconf.SatConf, error)
	SatConfs() []*satconf.SatConf
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	SatConfs SatConfs
	MQTT     MQTTClient
	Topics   mqtt.Topics
	Logger   Logger

	// Version is reported in health messages.
	Version string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// Checks are run on every health report; a failing check marks the
	// bridge degraded. Keys name the dependency, e.g. "database".
	Checks map[string]func(ctx context.Context) error
}

// NewBridge creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - opts: SatConfs, MQTT and Topics are required
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If a required option is missing
func NewBridge(opts Options) (*Bridge, error) {
	if opts.SatConfs == nil {
		return nil, errors.New("bridge: satconfs are required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("bridge: mqtt client is required")
	}
	if opts.Topics.Site == "" {
		return nil, errors.New("bridge: site is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		satconfs: opts.SatConfs,
		mqtt:     opts.MQTT,
		topics:   opts.Topics,
		logger:   logger,
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.health = NewHealthReporter(HealthReporterConfig{
		Site:      opts.Topics.Site,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Topic:     opts.Topics.Health(),
		Publisher: opts.MQTT,
		SatConfs:  opts.SatConfs,
		Checks:    opts.Checks,
	})
	b.health.SetLogger(logger)
	return b, nil
}

// SetLogger replaces the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to the command topics, publishes the state of every
// frontend and starts health reporting.
func (b *Bridge) Start() error {
	if err := b.health.PublishStarting(); err != nil {
		b.log().Warn("publishing starting health failed", "error", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllCommands(), ackQoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	for _, sc := range b.satconfs.SatConfs() {
		if err := b.PublishState(sc); err != nil {
			b.log().Warn("publishing initial state failed", "satconf", sc.Name(), "error", err)
		}
	}
	b.health.Start(b.ctx)
	b.log().Info("bridge started", "site", b.topics.Site, "frontends", len(b.satconfs.SatConfs()))
	return nil
}

// Stop cancels running tune commands, waits for them and publishes a
// final stopping health status. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopping = true
		b.stopMu.Unlock()

		b.cancel()
		b.wg.Wait()
		b.health.Stop()
		b.log().Info("bridge stopped")
	})
}

// PublishState publishes the retained state snapshot of sc.
func (b *Bridge) PublishState(sc *satconf.SatConf) error {
	msg := StateMessage{Status: sc.Status(), Timestamp: time.Now().UTC()}
	return b.publishJSON(b.topics.State(sc.Name()), msg, true)
}

// TuningFinished publishes the event for a finished attempt and the new
// state of its SatConf.
func (b *Bridge) TuningFinished(o satconf.Outcome) {
	if err := b.publishJSON(b.topics.Event(o.SatConf), newEventMessage(o), false); err != nil {
		b.log().Warn("publishing tuning event failed", "satconf", o.SatConf, "attempt", o.AttemptID, "error", err)
	}
	sc, err := b.satconfs.SatConf(o.SatConf)
	if err != nil {
		return
	}
	if err := b.PublishState(sc); err != nil {
		b.log().Warn("publishing state failed", "satconf", o.SatConf, "error", err)
	}
}

// spawn runs f in a goroutine tracked by Stop. It reports false once Stop
// has begun.
func (b *Bridge) spawn(f func()) bool {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopping {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
	return true
}

// handleCommand is the MQTT handler for satlink/{site}/frontend/+/command.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	name, ok := b.topics.FrontendFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAckError(name, cmd, ErrCodeInvalidCommand, fmt.Sprintf("invalid JSON: %v", err))
		return fmt.Errorf("parsing command: %w", err)
	}
	if err := cmd.validate(); err != nil {
		code := ErrCodeInvalidCommand
		if errors.Is(err, errUnknownAction) {
			code = ErrCodeUnknownAction
		}
		b.publishAckError(name, cmd, code, err.Error())
		return err
	}

	sc, err := b.satconfs.SatConf(name)
	if err != nil {
		b.publishAckError(name, cmd, satconf.ErrorCode(err), err.Error())
		return err
	}

	b.log().Debug("command received", "frontend", name, "action", cmd.Action, "id", cmd.ID,
		"mux", cmd.MuxID, "source", cmd.Source)

	switch cmd.Action {
	case ActionTune:
		if !b.spawn(func() { b.tune(sc, cmd) }) {
			b.publishAckError(name, cmd, satconf.CodeClosed, "bridge is stopping")
			return nil
		}
	case ActionStop:
		if err := sc.StopTuning(cmd.MuxID); err != nil {
			b.publishAckError(name, cmd, satconf.ErrorCode(err), err.Error())
			return err
		}
		b.publishAck(AckMessage{CommandID: cmd.ID, Frontend: name, Status: AckStopped, MuxID: cmd.MuxID})
		if err := b.PublishState(sc); err != nil {
			b.log().Warn("publishing state failed", "satconf", name, "error", err)
		}
	case ActionStatus:
		if err := b.PublishState(sc); err != nil {
			return err
		}
		b.publishAck(AckMessage{CommandID: cmd.ID, Frontend: name, Status: AckAccepted})
	}
	return nil
}

var errUnknownAction = errors.New("unknown action")

func (cmd CommandMessage) validate() error {
	if cmd.ID == "" {
		return errors.New("command id is required")
	}
	switch cmd.Action {
	case ActionTune:
		if cmd.MuxID == "" || cmd.Tuning == nil {
			return errors.New("tune requires mux_id and tuning")
		}
		if cmd.Tuning.Frequency == 0 {
			return errors.New("tuning frequency is required")
		}
	case ActionStop:
		if cmd.MuxID == "" {
			return errors.New("stop requires mux_id")
		}
	case ActionStatus:
	default:
		return fmt.Errorf("%w %q", errUnknownAction, cmd.Action)
	}
	return nil
}

// tune runs one tune command. The final ack comes either from the
// synchronous return or from Request.Done when a rotor wait suspended the
// attempt, whichever reports first.
func (b *Bridge) tune(sc *satconf.SatConf, cmd CommandMessage) {
	acks := &tuneAcks{bridge: b, frontend: sc.Name(), cmd: cmd}

	ctx, cancel := context.WithTimeout(b.ctx, tuneTimeout)
	defer cancel()

	res, err := sc.StartTuning(ctx, satconf.Request{
		MuxID:      cmd.MuxID,
		ElementID:  cmd.ElementID,
		Tuning:     *cmd.Tuning,
		SkipDiseqc: cmd.SkipDiseqc,
		Done:       acks.finished,
	})
	switch {
	case err != nil:
		acks.final(AckFailed, &res, err)
	case res.State == satconf.StateSuspended:
		acks.pending(res)
	case res.State.Final():
		acks.final(ackStatusFor(res.State), &res, nil)
	}
}

// tuneAcks sends at most one final ack per tune command, and no pending
// ack once the final one is out.
type tuneAcks struct {
	bridge   *Bridge
	frontend string
	cmd      CommandMessage

	mu   sync.Mutex
	done bool
}

func (t *tuneAcks) pending(res satconf.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.bridge.publishAck(AckMessage{
		CommandID: t.cmd.ID,
		Frontend:  t.frontend,
		Status:    AckPending,
		MuxID:     t.cmd.MuxID,
		Result:    &res,
	})
}

func (t *tuneAcks) finished(o satconf.Outcome) {
	res := satconf.Result{
		AttemptID:             o.AttemptID,
		State:                 o.State,
		ElementID:             o.ElementID,
		Band:                  o.Band,
		Polarity:              o.Polarity,
		IntermediateFrequency: o.IntermediateFrequency,
		Frequency:             o.Frequency,
		GraceSeconds:          o.GraceSeconds,
	}
	t.final(ackStatusFor(o.State), &res, o.Err)
}

func (t *tuneAcks) final(status AckStatus, res *satconf.Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true

	ack := AckMessage{
		CommandID: t.cmd.ID,
		Frontend:  t.frontend,
		Status:    status,
		MuxID:     t.cmd.MuxID,
	}
	if res != nil && res.AttemptID != "" {
		ack.Result = res
	}
	if err != nil {
		ack.Error = &AckError{Code: satconf.ErrorCode(err), Message: err.Error()}
	}
	t.bridge.publishAck(ack)
}

func ackStatusFor(s satconf.State) AckStatus {
	switch s {
	case satconf.StateLocked:
		return AckLocked
	case satconf.StateCancelled:
		return AckCancelled
	case satconf.StateSuspended:
		return AckPending
	default:
		return AckFailed
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	ack.Timestamp = time.Now().UTC()
	if err := b.publishJSON(b.topics.Ack(ack.Frontend), ack, false); err != nil {
		b.log().Warn("publishing ack failed", "frontend", ack.Frontend, "command", ack.CommandID, "error", err)
	}
}

func (b *Bridge) publishAckError(frontend string, cmd CommandMessage, code, message string) {
	b.publishAck(AckMessage{
		CommandID: cmd.ID,
		Frontend:  frontend,
		Status:    AckFailed,
		MuxID:     cmd.MuxID,
		Error:     &AckError{Code: code, Message: message},
	})
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, ackQoS, retained)
}
