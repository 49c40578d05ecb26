package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/soapscribe/soapscribe/internal/notegen"
	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/observe"
	"github.com/soapscribe/soapscribe/internal/session"
	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/llm"
	llmmock "github.com/soapscribe/soapscribe/pkg/provider/llm/mock"
	sttmock "github.com/soapscribe/soapscribe/pkg/provider/stt/mock"
)

const owner = "dr.a@clinic.example"

// fixture bundles a controller with the doubles behind it.
type fixture struct {
	ctrl  *session.Controller
	stt   *sttmock.Provider
	llm   *llmmock.Provider
	store *spyStore
}

func newFixture(t *testing.T, ownerID string, opts ...session.Option) *fixture {
	t.Helper()

	sttp := &sttmock.Provider{Text: "patient reports headache"}
	llmp := &llmmock.Provider{Content: "S: headache\nO: afebrile\nA: tension headache\nP: hydration"}
	store := &spyStore{Store: notes.NewMemStore()}

	gen, err := notegen.New(llmp)
	if err != nil {
		t.Fatalf("notegen.New: %v", err)
	}
	ctrl, err := session.New(session.Config{
		Owner:     ownerID,
		Device:    capture.NewBufferDevice(),
		STT:       sttp,
		Generator: gen,
		Store:     store,
	}, opts...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return &fixture{ctrl: ctrl, stt: sttp, llm: llmp, store: store}
}

// record drives a full start → write → stop cycle.
func (f *fixture) record(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := f.ctrl.WriteAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	if err := f.ctrl.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
}

func TestRecordThenTranscribe(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReady {
		t.Fatalf("state = %s, want ready", snap.State)
	}
	if snap.Transcript != "patient reports headache" {
		t.Fatalf("transcript = %q", snap.Transcript)
	}
	if f.stt.CallCount() != 1 {
		t.Fatalf("stt called %d times, want 1", f.stt.CallCount())
	}
	if blob := f.stt.Calls[0].Blob; blob.Empty() {
		t.Fatal("stt received an empty blob")
	}
}

func TestGenerateFromReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)

	if err := f.ctrl.Generate(context.Background()); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing", snap.State)
	}
	if snap.NoteBody != f.llm.Content {
		t.Fatalf("note body = %q", snap.NoteBody)
	}
	if snap.Saved {
		t.Fatal("fresh note reported as saved")
	}

	req := f.llm.LastCall().Req
	if req.SystemPrompt != notegen.DefaultTemplate {
		t.Fatalf("system prompt = %q, want default template", req.SystemPrompt)
	}
	if req.UserContent != "patient reports headache" {
		t.Fatalf("user content = %q", req.UserContent)
	}
}

func TestSaveNewRecordNotifiesObservers(t *testing.T) {
	t.Parallel()

	watched := notes.Watch(notes.NewMemStore(), nil)
	var lists [][]notes.Record
	watched.Subscribe(func(_ string, records []notes.Record) {
		lists = append(lists, records)
	})

	sttp := &sttmock.Provider{Text: "patient reports headache"}
	llmp := &llmmock.Provider{Content: "S: headache"}
	gen, err := notegen.New(llmp)
	if err != nil {
		t.Fatalf("notegen.New: %v", err)
	}
	ctrl, err := session.New(session.Config{
		Owner:     owner,
		Device:    capture.NewBufferDevice(),
		STT:       sttp,
		Generator: gen,
		Store:     watched,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := ctrl.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if err := ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := ctrl.Save(ctx, "J. Doe", false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.State != session.StateIdle {
		t.Fatalf("state after save = %s, want idle", snap.State)
	}
	if snap.Transcript != "" || snap.NoteBody != "" {
		t.Fatal("save did not clear encounter state")
	}
	if snap.Template != notegen.DefaultTemplate {
		t.Fatal("save did not restore default template")
	}

	if len(lists) == 0 {
		t.Fatal("no change notification fired")
	}
	last := lists[len(lists)-1]
	if len(last) != 1 || last[0].SubjectName != "J. Doe" || last[0].Body != "S: headache" {
		t.Fatalf("notified list = %+v", last)
	}
}

func TestTranscriptionFailureKeepsPriorTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t) // first pass succeeds, transcript present

	ctx := context.Background()
	f.stt.Err = errors.New("upstream 503")
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	err := f.ctrl.StopRecording(ctx)
	if !errors.Is(err, session.ErrTranscriptionFailed) {
		t.Fatalf("StopRecording: err = %v, want ErrTranscriptionFailed", err)
	}

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}
	if snap.Transcript != "patient reports headache" {
		t.Fatalf("prior transcript clobbered: %q", snap.Transcript)
	}
	if snap.LastError == "" {
		t.Fatal("failure not surfaced in snapshot")
	}
}

func TestGenerateIgnoredWhileCapturing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	ctx := context.Background()
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate while recording: err = %v, want silent no-op", err)
	}
	if f.llm.CallCount() != 0 {
		t.Fatalf("generation gateway called %d times, want 0", f.llm.CallCount())
	}
	if got := f.ctrl.Snapshot().State; got != session.StateRecording {
		t.Fatalf("state = %s, want recording unchanged", got)
	}
}

func TestGenerateFromIdleRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	if err := f.ctrl.Generate(context.Background()); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("Generate from idle: err = %v, want ErrInvalidTransition", err)
	}
}

func TestGenerateFailureReturnsToReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)

	f.llm.Err = errors.New("rate limited")
	err := f.ctrl.Generate(context.Background())
	if !errors.Is(err, notegen.ErrGenerationFailed) {
		t.Fatalf("Generate: err = %v, want ErrGenerationFailed", err)
	}

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReady {
		t.Fatalf("state = %s, want ready", snap.State)
	}
	if snap.Transcript != "patient reports headache" {
		t.Fatalf("transcript not preserved: %q", snap.Transcript)
	}
	if snap.NoteBody != "" {
		t.Fatal("review state opened despite failure")
	}
}

func TestOpenExistingEditApprove(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	ctx := context.Background()
	seed, err := f.store.Store.Create(ctx, owner, "Jane Roe", "original body")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.ctrl.OpenExisting(ctx, seed.ID); err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReviewing || !snap.Saved || snap.RecordID != seed.ID {
		t.Fatalf("after open: %+v", snap)
	}

	if err := f.ctrl.EditBody("edited body"); err != nil {
		t.Fatalf("EditBody: %v", err)
	}
	if err := f.ctrl.Save(ctx, "", true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if f.store.creates != 0 {
		t.Fatalf("create called %d times, want 0", f.store.creates)
	}
	if f.store.updates != 1 {
		t.Fatalf("update called %d times, want exactly 1", f.store.updates)
	}

	rec, err := f.store.Store.Get(ctx, owner, seed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Body != "edited body" || !rec.Approved {
		t.Fatalf("stored record = %+v", rec)
	}
}

func TestOpenExistingOnlyFromIdle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)
	if err := f.ctrl.OpenExisting(context.Background(), 1); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("OpenExisting from ready: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSaveUnauthenticatedBlocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "") // anonymous local session
	f.record(t)
	ctx := context.Background()
	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	err := f.ctrl.Save(ctx, "J. Doe", false)
	if !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("Save: err = %v, want ErrUnauthenticated", err)
	}
	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing preserved", snap.State)
	}
	if f.store.creates != 0 {
		t.Fatal("store reached despite missing identity")
	}
}

func TestSaveNewRequiresSubjectName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)
	ctx := context.Background()
	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := f.ctrl.Save(ctx, "", false); !errors.Is(err, notes.ErrMissingSubject) {
		t.Fatalf("Save: err = %v, want ErrMissingSubject", err)
	}
	if got := f.ctrl.Snapshot().State; got != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing preserved", got)
	}
}

func TestSaveFailureReturnsToReviewing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)
	ctx := context.Background()
	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	f.store.createErr = errors.New("connection reset")
	if err := f.ctrl.Save(ctx, "J. Doe", false); err == nil {
		t.Fatal("Save: expected store error")
	}

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing", snap.State)
	}
	if snap.NoteBody == "" {
		t.Fatal("note body lost on failed save")
	}
}

func TestSaveApprovalFailureRetryDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)
	ctx := context.Background()
	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Create succeeds, the follow-up approval update fails: the record is in
	// the store, so the session must adopt its ID.
	f.store.updateErr = errors.New("connection reset")
	if err := f.ctrl.Save(ctx, "J. Doe", true); err == nil {
		t.Fatal("Save: expected approval update error")
	}

	snap := f.ctrl.Snapshot()
	if snap.State != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing", snap.State)
	}
	if !snap.Saved || snap.RecordID == 0 {
		t.Fatalf("snapshot = saved %v record %d, want created record adopted", snap.Saved, snap.RecordID)
	}

	// Retry must update the existing record, not create a second one.
	f.store.updateErr = nil
	if err := f.ctrl.Save(ctx, "", true); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	if f.store.creates != 1 {
		t.Fatalf("creates = %d, want 1", f.store.creates)
	}

	records, err := f.store.ListByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if !records[0].Approved || records[0].SubjectName != "J. Doe" {
		t.Fatalf("record = %+v, want approved with subject intact", records[0])
	}
}

func TestStopRecordingWhenNotRecordingIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	if err := f.ctrl.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if got := f.ctrl.Snapshot().State; got != session.StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if f.stt.CallCount() != 0 {
		t.Fatal("stt called without a recording")
	}
}

func TestStartRecordingRejectedWhileReviewing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	f.record(t)
	ctx := context.Background()
	if err := f.ctrl.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("StartRecording from reviewing: err = %v, want ErrInvalidTransition", err)
	}
}

func TestTranscriptEditsLockedDuringCapture(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	ctx := context.Background()
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := f.ctrl.SetTranscript("sneaky edit"); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("SetTranscript while recording: err = %v, want ErrInvalidTransition", err)
	}
}

func TestManualTranscriptEnablesGeneration(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	if err := f.ctrl.SetTranscript("typed, not spoken"); err != nil {
		t.Fatalf("SetTranscript: %v", err)
	}
	if got := f.ctrl.Snapshot().State; got != session.StateReady {
		t.Fatalf("state = %s, want ready", got)
	}
	if err := f.ctrl.Generate(context.Background()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := f.llm.LastCall().Req.UserContent; got != "typed, not spoken" {
		t.Fatalf("user content = %q", got)
	}
}

func TestEmptyTemplateRestoresDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	if err := f.ctrl.SetTemplate("custom"); err != nil {
		t.Fatalf("SetTemplate: %v", err)
	}
	if got := f.ctrl.Snapshot().Template; got != "custom" {
		t.Fatalf("template = %q", got)
	}
	if err := f.ctrl.SetTemplate(""); err != nil {
		t.Fatalf("SetTemplate: %v", err)
	}
	if got := f.ctrl.Snapshot().Template; got != notegen.DefaultTemplate {
		t.Fatal("empty template did not restore default")
	}
}

func TestAbandonDropsInFlightGeneration(t *testing.T) {
	t.Parallel()

	blocking := &blockingLLM{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	gen, err := notegen.New(blocking)
	if err != nil {
		t.Fatalf("notegen.New: %v", err)
	}
	ctrl, err := session.New(session.Config{
		Owner:     owner,
		Device:    capture.NewBufferDevice(),
		STT:       &sttmock.Provider{Text: "transcript"},
		Generator: gen,
		Store:     notes.NewMemStore(),
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := ctrl.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Generate(ctx) }()

	<-blocking.started
	ctrl.Abandon()
	close(blocking.release)

	if err := <-done; err != nil {
		t.Fatalf("Generate after abandon: err = %v, want nil (stale result dropped)", err)
	}
	snap := ctrl.Snapshot()
	if snap.State != session.StateIdle || snap.NoteBody != "" {
		t.Fatalf("stale generation result applied: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, owner)
	snap := f.ctrl.Snapshot()
	snap.Transcript = "mutated"
	if f.ctrl.Snapshot().Transcript == "mutated" {
		t.Fatal("snapshot mutation leaked into controller")
	}
}

func TestManagerOneControllerPerOwner(t *testing.T) {
	t.Parallel()

	var built []string
	m := session.NewManager(func(o string) *session.Controller {
		built = append(built, o)
		return newFixture(t, o).ctrl
	})

	a1 := m.Get(owner)
	a2 := m.Get(owner)
	b := m.Get("dr.b@clinic.example")

	if a1 != a2 {
		t.Fatal("same owner got two controllers")
	}
	if a1 == b {
		t.Fatal("different owners share a controller")
	}
	if m.Len() != 2 || len(built) != 2 {
		t.Fatalf("Len = %d, built = %v", m.Len(), built)
	}
}

// activeRecordings reads the current active-recordings gauge value.
func activeRecordings(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "soapscribe.active_recordings" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("unexpected gauge data: %+v", met.Data)
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func TestRecordingGaugeTracksAllStopPaths(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t, owner, session.WithMetrics(m))
	ctx := context.Background()

	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if got := activeRecordings(t, reader); got != 1 {
		t.Fatalf("gauge after start = %d, want 1", got)
	}

	if err := f.ctrl.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if got := activeRecordings(t, reader); got != 0 {
		t.Fatalf("gauge after stop = %d, want 0", got)
	}

	// Abandon with an open capture must release the gauge too.
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	f.ctrl.Abandon()
	if got := activeRecordings(t, reader); got != 0 {
		t.Fatalf("gauge after abandon = %d, want 0", got)
	}
}

// spyStore wraps a real store and counts mutating calls.
type spyStore struct {
	notes.Store
	creates   int
	updates   int
	createErr error
	updateErr error
}

func (s *spyStore) Create(ctx context.Context, owner string, subjectName, body string) (notes.Record, error) {
	s.creates++
	if s.createErr != nil {
		return notes.Record{}, s.createErr
	}
	return s.Store.Create(ctx, owner, subjectName, body)
}

func (s *spyStore) Update(ctx context.Context, owner string, id int64, upd notes.Update) (notes.Record, error) {
	s.updates++
	if s.updateErr != nil {
		return notes.Record{}, s.updateErr
	}
	return s.Store.Update(ctx, owner, id, upd)
}

// blockingLLM blocks Complete until released, so tests can abandon a session
// mid-generation.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingLLM) Complete(context.Context, llm.Request) (*llm.Response, error) {
	close(b.started)
	<-b.release
	return &llm.Response{Content: strings.Repeat("late ", 3)}, nil
}
