// Package session implements the encounter session state machine.
//
// A Controller owns one clinician's in-progress encounter: it sequences
// capture → transcription → note generation → persistence, enforces valid
// transitions, and exposes the observable state as a [Snapshot]. All
// in-progress tracking lives in the single [State] value; there are no
// independent boolean flags that can disagree with each other.
//
// Blocking gateway calls (transcription, generation, persistence) run without
// the controller lock. Each such call captures the controller's epoch first;
// Abandon bumps the epoch, so a result arriving after an abandon is
// recognized as stale and dropped instead of resurrecting the old session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soapscribe/soapscribe/internal/notegen"
	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/observe"
	"github.com/soapscribe/soapscribe/internal/transcript"
	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/stt"
)

// Sentinel errors surfaced by the Controller.
var (
	// ErrInvalidTransition is returned when an operation is not legal in the
	// current state.
	ErrInvalidTransition = errors.New("session: operation not valid in current state")

	// ErrUnauthenticated is returned when persistence is attempted without an
	// authenticated identity. Recording, transcription, and generation remain
	// available to unauthenticated sessions; only the store is off limits.
	ErrUnauthenticated = errors.New("session: persistence requires an authenticated identity")

	// ErrTranscriptionFailed wraps speech-to-text gateway failures.
	ErrTranscriptionFailed = errors.New("session: transcription failed")
)

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithCorrector attaches a vocabulary corrector applied to every successful
// transcription result. Nil (the default) disables correction.
func WithCorrector(c *transcript.Corrector) Option {
	return func(ctrl *Controller) {
		ctrl.corrector = c
	}
}

// WithDefaultTemplate overrides the built-in instruction template. An empty
// value keeps [notegen.DefaultTemplate].
func WithDefaultTemplate(tmpl string) Option {
	return func(ctrl *Controller) {
		if tmpl != "" {
			ctrl.defaultTemplate = tmpl
		}
	}
}

// WithOnChange registers a callback invoked with a fresh Snapshot after every
// observable state change. The callback runs synchronously on the mutating
// goroutine, without the controller lock held.
func WithOnChange(fn func(Snapshot)) Option {
	return func(ctrl *Controller) {
		ctrl.onChange = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ctrl *Controller) {
		ctrl.log = logger
	}
}

// WithMetrics attaches metric instruments. The controller maintains the
// active-recordings gauge at the state transitions themselves, so every path
// that opens or closes a capture (HTTP, websocket, abandon) is accounted for.
func WithMetrics(m *observe.Metrics) Option {
	return func(ctrl *Controller) {
		ctrl.metrics = m
	}
}

// Config holds the Controller's required dependencies.
type Config struct {
	// Owner is the clinician identity this session belongs to. May be empty
	// for an unauthenticated local session; persistence is then blocked.
	Owner string

	// Device provides audio capture sessions.
	Device capture.Device

	// STT is the transcription gateway.
	STT stt.Provider

	// Generator is the note generation gateway.
	Generator *notegen.Generator

	// Store persists note records. May be nil when persistence is disabled;
	// save and open then fail with ErrUnauthenticated semantics.
	Store notes.Store
}

// Controller is the per-clinician session state machine. All exported
// methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	owner string
	state State

	transcriptText  string
	template        string
	defaultTemplate string
	noteBody        string
	subjectName     string
	recordID        int64
	saved           bool
	lastErr         string

	// epoch invalidates in-flight gateway results after an Abandon.
	epoch uint64

	active capture.Session

	device    capture.Device
	sttp      stt.Provider
	generator *notegen.Generator
	store     notes.Store
	corrector *transcript.Corrector
	onChange  func(Snapshot)
	log       *slog.Logger
	metrics   *observe.Metrics
}

// New validates cfg and creates an idle Controller.
func New(cfg Config, opts ...Option) (*Controller, error) {
	err := errors.Join(
		requireDep(cfg.Device == nil, "capture device"),
		requireDep(cfg.STT == nil, "stt provider"),
		requireDep(cfg.Generator == nil, "note generator"),
	)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		owner:           cfg.Owner,
		state:           StateIdle,
		defaultTemplate: notegen.DefaultTemplate,
		device:          cfg.Device,
		sttp:            cfg.STT,
		generator:       cfg.Generator,
		store:           cfg.Store,
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.template = c.defaultTemplate
	return c, nil
}

func requireDep(missing bool, name string) error {
	if missing {
		return fmt.Errorf("session: %s must not be nil", name)
	}
	return nil
}

// Owner returns the identity this session belongs to.
func (c *Controller) Owner() string { return c.owner }

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:       c.state,
		Owner:       c.owner,
		Transcript:  c.transcriptText,
		Template:    c.template,
		NoteBody:    c.noteBody,
		SubjectName: c.subjectName,
		RecordID:    c.recordID,
		Saved:       c.saved,
		LastError:   c.lastErr,
	}
}

// notify delivers snap to the change callback, outside the lock.
func (c *Controller) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// recordingGauge adjusts the active-recordings gauge when metrics are wired.
func (c *Controller) recordingGauge(ctx context.Context, delta int64) {
	if c.metrics != nil {
		c.metrics.ActiveRecordings.Add(ctx, delta)
	}
}

// StartRecording opens a capture session. Legal from Idle, and from Ready to
// re-record an encounter; a successful new transcription then replaces the
// transcript. Not legal while a note is under review.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateReady {
		c.mu.Unlock()
		return fmt.Errorf("%w: start recording from %s", ErrInvalidTransition, c.state)
	}

	sess, err := c.device.Open(ctx)
	if err != nil {
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return fmt.Errorf("session: start recording: %w", err)
	}

	c.active = sess
	c.state = StateRecording
	c.lastErr = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.recordingGauge(ctx, 1)
	c.log.Info("recording started", "owner", c.owner)
	c.notify(snap)
	return nil
}

// WriteAudio appends an audio chunk to the open capture session. Legal only
// while Recording.
func (c *Controller) WriteAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording || c.active == nil {
		return fmt.Errorf("%w: write audio from %s", ErrInvalidTransition, c.state)
	}
	return c.active.Write(chunk)
}

// StopRecording finalizes the capture session and runs transcription. On
// success the session moves to Ready with the (corrected) transcript; on
// transcription failure it returns to Idle with the prior transcript intact.
// Calling StopRecording when not recording is a no-op.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}

	sess := c.active
	c.active = nil
	blob, err := sess.Finalize()
	if err != nil {
		c.state = StateIdle
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.recordingGauge(ctx, -1)
		c.notify(snap)
		return fmt.Errorf("session: finalize recording: %w", err)
	}

	c.state = StateTranscribing
	epoch := c.epoch
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.recordingGauge(ctx, -1)
	c.notify(snap)

	text, err := c.sttp.Transcribe(ctx, blob)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		// Prior transcript stays untouched.
		c.state = StateIdle
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Warn("transcription failed", "owner", c.owner, "error", err)
		c.notify(snap)
		return fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	if c.corrector != nil {
		corrected, corrections := c.corrector.Correct(text)
		if len(corrections) > 0 {
			c.log.Debug("transcript vocabulary corrections applied", "count", len(corrections))
		}
		text = corrected
	}

	c.transcriptText = text
	c.state = StateReady
	c.lastErr = ""
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("transcription complete", "owner", c.owner, "chars", len(text))
	c.notify(snap)
	return nil
}

// SetTranscript replaces the transcript text. Rejected while Recording or
// Transcribing; from Idle a non-empty transcript moves the session to Ready
// so generation becomes available.
func (c *Controller) SetTranscript(text string) error {
	c.mu.Lock()
	if c.state == StateRecording || c.state == StateTranscribing {
		c.mu.Unlock()
		return fmt.Errorf("%w: edit transcript from %s", ErrInvalidTransition, c.state)
	}
	c.transcriptText = text
	if c.state == StateIdle && text != "" {
		c.state = StateReady
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// SetTemplate replaces the instruction template. An empty value restores the
// default; the template is never empty.
func (c *Controller) SetTemplate(tmpl string) error {
	c.mu.Lock()
	if tmpl == "" {
		tmpl = c.defaultTemplate
	}
	c.template = tmpl
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Generate submits the current transcript and template to the generation
// gateway. Requests made while Recording or Transcribing are ignored without
// touching state or the gateway; any other non-Ready state is an invalid
// transition. On success the session moves to Reviewing with a fresh unsaved
// note; on failure it returns to Ready with the transcript preserved.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRecording || c.state == StateTranscribing {
		c.mu.Unlock()
		c.log.Debug("generate ignored while capture in flight", "state", c.state)
		return nil
	}
	if c.state != StateReady {
		c.mu.Unlock()
		return fmt.Errorf("%w: generate from %s", ErrInvalidTransition, c.state)
	}

	text := c.transcriptText
	tmpl := c.template
	c.state = StateGenerating
	epoch := c.epoch
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	body, err := c.generator.Generate(ctx, tmpl, text)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state = StateReady
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Warn("note generation failed", "owner", c.owner, "error", err)
		c.notify(snap)
		return err
	}

	c.noteBody = body
	c.subjectName = ""
	c.recordID = 0
	c.saved = false
	c.state = StateReviewing
	c.lastErr = ""
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("note generated", "owner", c.owner, "chars", len(body))
	c.notify(snap)
	return nil
}

// EditBody replaces the note body under review. Local only; the store is not
// touched until Save. Legal only while Reviewing.
func (c *Controller) EditBody(body string) error {
	c.mu.Lock()
	if c.state != StateReviewing {
		c.mu.Unlock()
		return fmt.Errorf("%w: edit note body from %s", ErrInvalidTransition, c.state)
	}
	c.noteBody = body
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Save persists the note under review. A fresh note is created (subjectName
// required); a note opened from the store is updated by its record ID. When
// approve is set the persisted record also gets its approval flag.
//
// Unauthenticated sessions cannot save: the attempt is blocked with
// ErrUnauthenticated and the review state is preserved. On store failure the
// session returns to Reviewing so the clinician can retry; on success it
// resets to Idle. If the record was created but a follow-up approval update
// failed, the session adopts the new record's ID so the retry updates it
// rather than creating a duplicate.
func (c *Controller) Save(ctx context.Context, subjectName string, approve bool) error {
	c.mu.Lock()
	if c.state != StateReviewing {
		c.mu.Unlock()
		return fmt.Errorf("%w: save from %s", ErrInvalidTransition, c.state)
	}
	if c.owner == "" || c.store == nil {
		c.lastErr = ErrUnauthenticated.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return ErrUnauthenticated
	}
	if !c.saved && subjectName == "" {
		c.lastErr = notes.ErrMissingSubject.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return notes.ErrMissingSubject
	}

	body := c.noteBody
	recordID := c.recordID
	persisted := c.saved
	c.state = StateSaving
	epoch := c.epoch
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	var (
		err       error
		createdID int64
	)
	if persisted {
		upd := notes.Update{Body: &body}
		if subjectName != "" {
			upd.SubjectName = &subjectName
		}
		if approve {
			t := true
			upd.Approved = &t
		}
		_, err = c.store.Update(ctx, c.owner, recordID, upd)
	} else {
		var rec notes.Record
		rec, err = c.store.Create(ctx, c.owner, subjectName, body)
		if err == nil {
			createdID = rec.ID
			if approve {
				t := true
				_, err = c.store.Update(ctx, c.owner, rec.ID, notes.Update{Approved: &t})
			}
		}
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		// The record may have been created even though the approval update
		// failed. Remember its ID so a retry updates it instead of creating
		// a duplicate.
		if createdID != 0 {
			c.recordID = createdID
			c.subjectName = subjectName
			c.saved = true
		}
		c.state = StateReviewing
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Warn("save failed", "owner", c.owner, "error", err)
		c.notify(snap)
		return err
	}

	c.resetLocked()
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("note saved", "owner", c.owner, "record_id", recordID, "new", !persisted)
	c.notify(snap)
	return nil
}

// OpenExisting loads a persisted record into review, bypassing capture and
// generation. Legal only from Idle; a subsequent Save updates the record by
// its ID instead of creating a new one.
func (c *Controller) OpenExisting(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("%w: open record from %s", ErrInvalidTransition, c.state)
	}
	if c.owner == "" || c.store == nil {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	epoch := c.epoch
	c.mu.Unlock()

	rec, err := c.store.Get(ctx, c.owner, id)

	c.mu.Lock()
	if c.epoch != epoch || c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return fmt.Errorf("session: open record %d: %w", id, err)
	}

	c.noteBody = rec.Body
	c.subjectName = rec.SubjectName
	c.recordID = rec.ID
	c.saved = true
	c.state = StateReviewing
	c.lastErr = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Abandon discards the in-progress encounter and returns to Idle. Any open
// capture session is dropped without producing a blob, and results of
// in-flight gateway calls are ignored when they arrive. Abandoning an idle
// session is a no-op that still resets edits.
func (c *Controller) Abandon() {
	c.mu.Lock()
	c.epoch++
	discarded := c.active != nil
	if discarded {
		c.active.Discard()
		c.active = nil
	}
	c.resetLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if discarded {
		c.recordingGauge(context.Background(), -1)
	}
	c.log.Info("session abandoned", "owner", c.owner)
	c.notify(snap)
}

// resetLocked clears all per-encounter state back to the idle defaults.
func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.transcriptText = ""
	c.template = c.defaultTemplate
	c.noteBody = ""
	c.subjectName = ""
	c.recordID = 0
	c.saved = false
	c.lastErr = ""
}
