package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// ScanFailedMessage is shown to the user when an extraction fails
const ScanFailedMessage = "Failed to scan receipt. Please try again."

var (
	// ErrInvalidTransition is returned when an action is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotEditable is returned by SetField while edit mode is off
	ErrNotEditable = errors.New("draft is not in edit mode")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("workflow closed")
)

// IDGenerator generates unique IDs for captured images
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds the workflow timings
type Config struct {
	// TickInterval is the period of the simulated progress
	TickInterval time.Duration
	// GracePeriod is how long progress is held at 100 before review starts
	GracePeriod time.Duration
	// SuccessHold is how long the success state is shown before resetting
	SuccessHold time.Duration
}

// DefaultConfig returns the standard workflow timings
func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		GracePeriod:  300 * time.Millisecond,
		SuccessHold:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = def.GracePeriod
	}
	if c.SuccessHold <= 0 {
		c.SuccessHold = def.SuccessHold
	}
	return c
}

// Snapshot is a consistent view of the workflow for rendering
type Snapshot struct {
	State    State                   `json:"state"`
	Episode  uint64                  `json:"episode"`
	Progress float64                 `json:"progress"`
	Image    *scanning.CapturedImage `json:"image,omitempty"`
	Draft    *Draft                  `json:"draft,omitempty"`
	Match    int64                   `json:"match,omitempty"`
	Editable bool                    `json:"editable"`
	Error    string                  `json:"error,omitempty"`
}

// Machine owns the capture workflow: it runs one extraction at a time,
// drives the progress simulator and holds the draft under review.
//
// Every scan gets a new episode number. Results and timers carry the episode
// they were started for and are dropped if it is no longer current.
type Machine struct {
	scanner  scanning.Scanner
	sink     Sink
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	ids      IDGenerator
	clock    TimeSource
	ctx      context.Context
	progress *ProgressSimulator
	subs     *broadcaster

	mu       sync.Mutex
	state    State
	episode  uint64
	image    *scanning.CapturedImage
	draft    *Draft
	editable bool
	errMsg   string
	timer    *time.Timer
	closed   bool
}

// Option configures a Machine
type Option func(*Machine)

// WithSink sets the collaborator notified on confirmation
func WithSink(sink Sink) Option {
	return func(m *Machine) { m.sink = sink }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics *Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// WithIDGenerator overrides the image ID generator
func WithIDGenerator(ids IDGenerator) Option {
	return func(m *Machine) { m.ids = ids }
}

// WithTimeSource overrides the clock used for capture timestamps
func WithTimeSource(clock TimeSource) Option {
	return func(m *Machine) { m.clock = clock }
}

// WithContext sets the base context for extraction calls. Cancelling a
// capture does not cancel this context; the call runs to completion and its
// result is discarded.
func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

// NewMachine creates an idle workflow around scanner
func NewMachine(scanner scanning.Scanner, cfg Config, opts ...Option) *Machine {
	m := &Machine{
		scanner: scanner,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		ids:     uuidGenerator{},
		clock:   defaultTimeSource{},
		ctx:     context.Background(),
		subs:    newBroadcaster(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.progress = NewProgressSimulator(m.cfg.TickInterval, m.onProgressTick)
	return m
}

// Submit starts scanning a new image. The image is validated before any
// transition; the workflow must be idle.
func (m *Machine) Submit(data []byte, contentType string) (Snapshot, error) {
	img := scanning.CapturedImage{
		ID:         m.ids.Generate(),
		Data:       data,
		MIMEType:   scanning.NormalizeMIMEType(contentType),
		CapturedAt: m.clock.Now(),
	}
	if err := scanning.ValidateImage(img); err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.snapshotLocked(), ErrClosed
	}
	if err := m.transitionLocked(StateScanning); err != nil {
		return m.snapshotLocked(), err
	}

	m.episode++
	episode := m.episode
	m.errMsg = ""
	m.image = &img
	m.draft = nil
	m.editable = false
	m.progress.Start()

	m.logger.Info("Scanning receipt",
		"episode", episode,
		"image_id", img.ID,
		"content_type", img.MIMEType,
		"file_size", len(img.Data),
	)

	snap := m.publishLocked()
	go m.extract(episode, img)
	return snap, nil
}

// extract performs the scanner call for one episode
func (m *Machine) extract(episode uint64, img scanning.CapturedImage) {
	start := time.Now()
	data, err := m.scanner.ScanReceipt(m.ctx, img)
	m.metrics.extraction(scanning.ErrorKind(err), time.Since(start))

	if err != nil {
		m.fail(episode, err)
		return
	}
	if data == nil {
		m.fail(episode, &scanning.MalformedResponseError{Err: scanning.ErrMissingPayload})
		return
	}
	m.resolve(episode, *data)
}

func (m *Machine) fail(episode uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.activeLocked(episode) {
		m.discardLocked(episode, err)
		return
	}

	m.logger.Error("Failed to scan receipt",
		"episode", episode,
		"kind", scanning.ErrorKind(err),
		"error", err,
	)
	m.progress.Reset()
	m.mustTransitionLocked(StateIdle)
	m.clearLocked()
	m.errMsg = ScanFailedMessage
	m.publishLocked()
}

// resolve completes progress, then enters review after the grace period
func (m *Machine) resolve(episode uint64, data scanning.ReceiptData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.activeLocked(episode) {
		m.discardLocked(episode, nil)
		return
	}

	m.progress.Complete()
	m.publishLocked()
	m.timer = time.AfterFunc(m.cfg.GracePeriod, func() {
		m.enterReview(episode, data)
	})
}

func (m *Machine) enterReview(episode uint64, data scanning.ReceiptData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.activeLocked(episode) {
		return
	}

	m.timer = nil
	draft := NewDraft(data)
	m.draft = &draft
	m.editable = false
	m.mustTransitionLocked(StateReviewing)

	m.logger.Info("Receipt ready for review",
		"episode", episode,
		"merchant", draft.Merchant,
		"confidence", draft.Confidence.String(),
	)
	m.publishLocked()
}

// Cancel abandons the current scan or review and returns to idle.
// An extraction still in flight is left to finish and its result is discarded.
func (m *Machine) Cancel() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateScanning && m.state != StateReviewing {
		return m.snapshotLocked(), m.invalidLocked(StateIdle)
	}

	m.logger.Info("Capture cancelled", "episode", m.episode, "state", m.state)
	m.resetLocked()
	return m.publishLocked(), nil
}

// ToggleEdit switches edit mode of the draft under review
func (m *Machine) ToggleEdit() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReviewing {
		return m.snapshotLocked(), fmt.Errorf("%w: cannot edit in %s", ErrInvalidTransition, m.state)
	}
	m.editable = !m.editable
	return m.publishLocked(), nil
}

// SetField replaces one field of the draft under review
func (m *Machine) SetField(field string, value any) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReviewing {
		return m.snapshotLocked(), fmt.Errorf("%w: cannot edit in %s", ErrInvalidTransition, m.state)
	}
	if !m.editable {
		return m.snapshotLocked(), ErrNotEditable
	}

	next, err := m.draft.SetField(field, value)
	if err != nil {
		return m.snapshotLocked(), err
	}
	m.draft = &next

	shown, _ := next.Field(field)
	m.logger.Debug("Draft field edited", "episode", m.episode, "field", field, "value", shown)
	return m.publishLocked(), nil
}

// Confirm accepts the draft under review, enters the success state and hands
// the final draft to the sink. The workflow resets to idle after SuccessHold.
// A sink error is returned but does not leave the success state.
func (m *Machine) Confirm(ctx context.Context) (Draft, error) {
	m.mu.Lock()
	if m.state != StateReviewing {
		err := m.invalidLocked(StateSuccess)
		m.mu.Unlock()
		return Draft{}, err
	}

	final := *m.draft
	receiptID := m.image.ID
	episode := m.episode
	m.mustTransitionLocked(StateSuccess)
	m.draft = nil
	m.editable = false
	m.timer = time.AfterFunc(m.cfg.SuccessHold, func() {
		m.autoReset(episode)
	})
	m.logger.Info("Receipt verified", "episode", episode, "receipt_id", receiptID)
	m.publishLocked()
	m.mu.Unlock()

	if m.sink != nil {
		if err := m.sink.Confirmed(ctx, receiptID, final); err != nil {
			m.logger.Error("Failed to record confirmed receipt", "receipt_id", receiptID, "error", err)
			return final, fmt.Errorf("recording confirmed receipt: %w", err)
		}
	}
	return final, nil
}

func (m *Machine) autoReset(episode uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || episode != m.episode || m.state != StateSuccess {
		return
	}
	m.resetLocked()
	m.publishLocked()
}

// Snapshot returns the current workflow view
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot followed by
// every later change, and a function that ends the subscription. Slow readers
// skip intermediate snapshots.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs.subscribe(m.snapshotLocked())
}

// Close stops timers and progress, invalidates the current episode and ends all subscriptions
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.episode++
	m.stopTimerLocked()
	m.progress.Stop()
	m.mu.Unlock()

	m.subs.close()
	return nil
}

func (m *Machine) onProgressTick(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != StateScanning {
		return
	}
	m.publishLocked()
}

func (m *Machine) activeLocked(episode uint64) bool {
	return !m.closed && episode == m.episode && m.state == StateScanning
}

func (m *Machine) discardLocked(episode uint64, err error) {
	m.metrics.staleDiscarded()
	m.logger.Debug("Discarding stale extraction result",
		"episode", episode,
		"current_episode", m.episode,
		"kind", scanning.ErrorKind(err),
	)
}

func (m *Machine) transitionLocked(next State) error {
	if !m.state.CanTransition(next) {
		return m.invalidLocked(next)
	}
	m.metrics.transition(m.state, next)
	m.state = next
	return nil
}

// mustTransitionLocked is used where the caller has already checked the state
func (m *Machine) mustTransitionLocked(next State) {
	if err := m.transitionLocked(next); err != nil {
		panic(err)
	}
}

func (m *Machine) invalidLocked(next State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// resetLocked returns to idle and invalidates the current episode
func (m *Machine) resetLocked() {
	m.stopTimerLocked()
	m.episode++
	m.progress.Reset()
	m.mustTransitionLocked(StateIdle)
	m.clearLocked()
	m.errMsg = ""
}

func (m *Machine) clearLocked() {
	m.image = nil
	m.draft = nil
	m.editable = false
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	var match int64
	if m.draft != nil {
		match = m.draft.ConfidencePercent()
	}
	return Snapshot{
		State:    m.state,
		Episode:  m.episode,
		Progress: m.progress.Value(),
		Image:    m.image,
		Draft:    m.draft,
		Match:    match,
		Editable: m.editable,
		Error:    m.errMsg,
	}
}

func (m *Machine) publishLocked() Snapshot {
	snap := m.snapshotLocked()
	m.subs.publish(snap)
	return snap
}
