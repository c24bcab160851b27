// Package relay runs the poll, filter, forward and mark pipeline and the
// housekeeping scheduler next to it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot/models"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/journal"
	"github.com/edgard/channelrelay/internal/model"
)

// ErrReconnectExhausted is returned by Run when the source could not be
// reconnected within the configured attempts.
var ErrReconnectExhausted = errors.New("source reconnect attempts exhausted")

const (
	stopTimeout    = 10 * time.Second
	journalTimeout = 5 * time.Second
)

// Source reads the source channel. *source.Reader satisfies it.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetRecent(ctx context.Context, limit int) ([]model.Message, error)
	GetNew(ctx context.Context, limit int) ([]model.Message, error)
	Reconnect(ctx context.Context, maxRetries int, delay time.Duration) error
	Cursor() int
}

// Sender delivers messages. *forwarder.Forwarder satisfies it.
type Sender interface {
	Initialize(ctx context.Context) error
	ValidateDestination(ctx context.Context, id string) (string, error)
	Forward(ctx context.Context, msg *model.Message, destination string) (*models.Message, error)
	Stop() error
}

// Matcher decides whether a message is relevant. *filter.Filter satisfies it.
type Matcher interface {
	IsMatch(msg *model.Message) bool
}

// Ledger records handled message IDs. *ledger.Ledger satisfies it.
type Ledger interface {
	IsProcessed(id int) bool
	MarkProcessed(id int) error
	Cleanup(ceiling int) (int, error)
	Len() int
}

// Deps are the components the orchestrator drives. Journal may be nil.
type Deps struct {
	Source  Source
	Sender  Sender
	Filter  Matcher
	Ledger  Ledger
	Journal journal.Store
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State       State
	Destination string
	Cursor      int
	Polls       int64
	Pending     int64
	LedgerSize  int
	Forwarded   int64
	Filtered    int64
	Duplicates  int64
	Failed      int64
	Abandoned   int64
}

// LogValue implements slog.LogValuer.
func (s Status) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", s.State.String()),
		slog.String("destination", s.Destination),
		slog.Int("cursor", s.Cursor),
		slog.Int64("polls", s.Polls),
		slog.Int64("pending", s.Pending),
		slog.Int("ledger_size", s.LedgerSize),
		slog.Int64("forwarded", s.Forwarded),
		slog.Int64("filtered", s.Filtered),
		slog.Int64("duplicates", s.Duplicates),
		slog.Int64("failed", s.Failed),
		slog.Int64("abandoned", s.Abandoned),
	)
}

type pendingForward struct {
	msg      model.Message
	attempts int
}

// Orchestrator owns the relay state machine. The pipeline runs on the
// goroutine that calls Run; Status and Stop are safe from any goroutine.
type Orchestrator struct {
	deps     Deps
	settings Settings
	logger   *slog.Logger

	state       atomic.Int32
	destination atomic.Value // string

	// Owned by the Run goroutine.
	pending map[int]*pendingForward
	polls   int

	pollCount    atomic.Int64
	pendingCount atomic.Int64
	forwarded    atomic.Int64
	filtered     atomic.Int64
	duplicates   atomic.Int64
	failed       atomic.Int64
	abandoned    atomic.Int64

	stopOnce sync.Once
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator in the Uninitialized state.
func New(deps Deps, settings Settings, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		deps:     deps,
		settings: settings.withDefaults(),
		logger:   logger.With("component", "orchestrator"),
		pending:  make(map[int]*pendingForward),
		sleep:    sleepContext,
	}
	o.destination.Store("")
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Status returns counters and position for reporting.
func (o *Orchestrator) Status() Status {
	return Status{
		State:       o.State(),
		Destination: o.destination.Load().(string),
		Cursor:      o.deps.Source.Cursor(),
		Polls:       o.pollCount.Load(),
		Pending:     o.pendingCount.Load(),
		LedgerSize:  o.deps.Ledger.Len(),
		Forwarded:   o.forwarded.Load(),
		Filtered:    o.filtered.Load(),
		Duplicates:  o.duplicates.Load(),
		Failed:      o.failed.Load(),
		Abandoned:   o.abandoned.Load(),
	}
}

// Run initializes both transports, scans the backfill window and then polls
// until ctx is canceled or the source cannot be reconnected. It returns nil
// on cancellation. The orchestrator is stopped when Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return fmt.Errorf("orchestrator cannot run from state %s", o.State())
	}
	o.logger.Info("State transition", "state", StateInitializing)
	defer o.Stop()

	if err := o.initialize(ctx); err != nil {
		o.logger.Error("Initialization failed", "error", err)
		return err
	}

	o.setState(StateBackfillScanning)
	for {
		err := o.backfill(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if !apperrors.IsConnectivity(err) {
			return err
		}
		if err := o.recover(ctx, err); err != nil {
			return err
		}
		// The cursor has not moved, so the whole window is scanned again.
		o.setState(StateBackfillScanning)
		if err := o.sleep(ctx, o.settings.PollInterval); err != nil {
			return nil
		}
	}

	o.setState(StatePolling)
	for {
		if err := o.sleep(ctx, o.settings.PollInterval); err != nil {
			o.logger.Info("Poll loop stopping", "reason", err)
			return nil
		}

		err := o.poll(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !apperrors.IsConnectivity(err) {
			o.logger.Error("Poll failed", "error", err)
			continue
		}
		if err := o.recover(ctx, err); err != nil {
			return err
		}
	}
}

// Stop moves to Stopped and disconnects both transports. It does not
// interrupt Run; cancel Run's context for that. Calling it more than once
// is harmless.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.setState(StateStopped)

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		if err := o.deps.Sender.Stop(); err != nil {
			o.logger.Warn("Error stopping forwarder", "error", err)
		}
		if err := o.deps.Source.Disconnect(ctx); err != nil {
			o.logger.Warn("Error disconnecting source", "error", err)
		}
		o.logger.Info("Orchestrator stopped", "status", o.Status())
	})
}

func (o *Orchestrator) setState(s State) {
	if State(o.state.Swap(int32(s))) != s {
		o.logger.Info("State transition", "state", s)
	}
}

func (o *Orchestrator) initialize(ctx context.Context) error {
	if err := o.deps.Source.Connect(ctx); err != nil {
		return err
	}
	if err := o.deps.Sender.Initialize(ctx); err != nil {
		return err
	}

	destination, err := o.deps.Sender.ValidateDestination(ctx, o.settings.Destination)
	if err != nil {
		var destErr *apperrors.DestinationError
		if errors.As(err, &destErr) {
			o.logger.Error("Invalid destination", "destination", o.settings.Destination, "hint", destErr.Hint)
		}
		return err
	}
	o.destination.Store(destination)
	o.logger.Info("Relay initialized", "destination", destination)
	return nil
}

func (o *Orchestrator) backfill(ctx context.Context) error {
	if o.settings.BackfillLimit == 0 {
		return nil
	}

	msgs, err := o.deps.Source.GetRecent(ctx, o.settings.BackfillLimit)
	if err != nil {
		return err
	}
	o.logger.Info("Backfill scan", "messages", len(msgs))
	return o.processBatch(ctx, msgs, o.settings.BackfillDelay)
}

func (o *Orchestrator) poll(ctx context.Context) error {
	o.polls++
	o.pollCount.Add(1)

	o.retryPending(ctx)

	msgs, err := o.deps.Source.GetNew(ctx, o.settings.PollLimit)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		o.logger.Debug("Poll fetched messages", "count", len(msgs), "cursor", o.deps.Source.Cursor())
	}
	if err := o.processBatch(ctx, msgs, o.settings.PollDelay); err != nil {
		return err
	}

	if o.polls%o.settings.CleanupEvery == 0 {
		evicted, err := o.deps.Ledger.Cleanup(o.settings.LedgerCeiling)
		if err != nil {
			o.logger.Warn("Ledger cleanup could not be persisted", "error", err)
		} else if evicted > 0 {
			o.logger.Info("Ledger cleanup", "evicted", evicted, "size", o.deps.Ledger.Len())
		}
	}
	return nil
}

// processBatch handles msgs in order with delay between consecutive
// messages. It stops early only when ctx is canceled.
func (o *Orchestrator) processBatch(ctx context.Context, msgs []model.Message, delay time.Duration) error {
	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && delay > 0 {
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}
		o.process(ctx, msgs[i])
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, msg model.Message) {
	log := o.logger.With("message_id", msg.ID)

	if o.deps.Ledger.IsProcessed(msg.ID) {
		o.duplicates.Add(1)
		log.Debug("Message already processed")
		return
	}
	if _, ok := o.pending[msg.ID]; ok {
		log.Debug("Message awaiting retry")
		return
	}

	if !o.deps.Filter.IsMatch(&msg) {
		o.filtered.Add(1)
		log.Debug("Message did not match keywords")
		o.mark(msg.ID)
		return
	}

	log.Info("Message matched keywords")
	o.deliver(ctx, &pendingForward{msg: msg})
}

func (o *Orchestrator) retryPending(ctx context.Context) {
	if len(o.pending) == 0 {
		return
	}
	o.logger.Info("Retrying pending forwards", "count", len(o.pending))

	for _, id := range slices.Sorted(maps.Keys(o.pending)) {
		p := o.pending[id]
		if o.deps.Ledger.IsProcessed(id) {
			o.dropPending(id)
			continue
		}
		o.deliver(ctx, p)
	}
}

// deliver forwards one message and records the outcome. The send and the
// ledger write run on a context detached from ctx so a shutdown cannot
// drop the record of a message that was already sent.
func (o *Orchestrator) deliver(ctx context.Context, p *pendingForward) {
	destination := o.destination.Load().(string)
	p.attempts++

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.settings.SendTimeout)
	defer cancel()

	log := o.logger.With("message_id", p.msg.ID, "destination", destination, "attempt", p.attempts)

	sent, err := o.deps.Sender.Forward(sendCtx, &p.msg, destination)
	if err == nil {
		sentID := 0
		if sent != nil {
			sentID = sent.ID
		}
		o.mark(p.msg.ID)
		o.dropPending(p.msg.ID)
		o.forwarded.Add(1)
		o.record(sendCtx, &journal.Entry{
			SourceMessageID: p.msg.ID,
			Destination:     destination,
			Status:          journal.StatusForwarded,
			SentMessageID:   sentID,
		})
		return
	}

	var destErr *apperrors.DestinationError
	switch {
	case errors.As(err, &destErr):
		log.Error("Forward abandoned, destination rejected the message", "error", err, "hint", destErr.Hint)
		o.abandon(sendCtx, p, err)
	case p.attempts >= o.settings.MaxForwardAttempts:
		log.Error("Forward abandoned after repeated failures", "error", err)
		o.abandon(sendCtx, p, err)
	default:
		log.Warn("Forward failed, will retry on next poll", "error", err)
		o.failed.Add(1)
		if _, ok := o.pending[p.msg.ID]; !ok {
			o.pending[p.msg.ID] = p
			o.pendingCount.Store(int64(len(o.pending)))
		}
		o.record(sendCtx, &journal.Entry{
			SourceMessageID: p.msg.ID,
			Destination:     destination,
			Status:          journal.StatusFailed,
			Error:           err.Error(),
		})
	}
}

// abandon gives up on a message without marking it processed.
func (o *Orchestrator) abandon(ctx context.Context, p *pendingForward, cause error) {
	o.abandoned.Add(1)
	o.dropPending(p.msg.ID)
	o.record(ctx, &journal.Entry{
		SourceMessageID: p.msg.ID,
		Destination:     o.destination.Load().(string),
		Status:          journal.StatusAbandoned,
		Error:           cause.Error(),
	})
}

func (o *Orchestrator) dropPending(id int) {
	delete(o.pending, id)
	o.pendingCount.Store(int64(len(o.pending)))
}

func (o *Orchestrator) mark(id int) {
	if err := o.deps.Ledger.MarkProcessed(id); err != nil {
		o.logger.Warn("Ledger write failed, continuing in memory", "message_id", id, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, entry *journal.Entry) {
	if o.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := o.deps.Journal.Record(ctx, entry); err != nil {
		o.logger.Warn("Failed to journal forward outcome", "message_id", entry.SourceMessageID, "error", err)
	}
}

// recover runs the reconnect loop after a connectivity failure. It returns
// nil once the source is back, or an error wrapping ErrReconnectExhausted.
func (o *Orchestrator) recover(ctx context.Context, cause error) error {
	o.setState(StateReconnectingBackoff)
	o.logger.Warn("Source connectivity lost", "error", cause)

	lastErr := cause
	for attempt := 1; attempt <= o.settings.MaxReconnectAttempts; attempt++ {
		err := o.deps.Source.Reconnect(ctx, o.settings.ReconnectRetries, o.settings.ReconnectDelay)
		if err == nil {
			o.logger.Info("Source reconnected", "attempt", attempt)
			o.setState(StatePolling)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		lastErr = err

		if attempt == o.settings.MaxReconnectAttempts {
			break
		}
		wait := o.settings.backoff(attempt)
		o.logger.Warn("Reconnect attempt failed", "attempt", attempt,
			"max_attempts", o.settings.MaxReconnectAttempts, "retry_in", wait, "error", err)
		if err := o.sleep(ctx, wait); err != nil {
			return nil
		}
	}

	o.logger.Error("Giving up on source connectivity", "attempts", o.settings.MaxReconnectAttempts, "error", lastErr)
	o.setState(StateStopped)
	return fmt.Errorf("%w: %w", ErrReconnectExhausted, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
