package app

import (
	"context"
	"time"

	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/observe"
	"github.com/soapscribe/soapscribe/pkg/capture"
	"github.com/soapscribe/soapscribe/pkg/provider/llm"
	"github.com/soapscribe/soapscribe/pkg/provider/stt"
	"go.opentelemetry.io/otel/metric"
)

// Compile-time interface checks.
var (
	_ stt.Provider = (*instrumentedSTT)(nil)
	_ llm.Provider = (*instrumentedLLM)(nil)
	_ notes.Store  = (*instrumentedStore)(nil)
)

// instrumentedSTT wraps an stt.Provider with transcription latency and
// request/error counters.
type instrumentedSTT struct {
	inner stt.Provider
	name  string
	m     *observe.Metrics
}

func (p *instrumentedSTT) Transcribe(ctx context.Context, blob capture.Blob) (string, error) {
	start := time.Now()
	text, err := p.inner.Transcribe(ctx, blob)
	p.m.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", p.name)))
	if err != nil {
		p.m.RecordProviderRequest(ctx, p.name, "stt", "error")
		p.m.RecordProviderError(ctx, p.name, "stt")
		return "", err
	}
	p.m.RecordProviderRequest(ctx, p.name, "stt", "ok")
	return text, nil
}

// instrumentedLLM wraps an llm.Provider with generation latency and
// request/error counters.
type instrumentedLLM struct {
	inner llm.Provider
	name  string
	m     *observe.Metrics
}

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	p.m.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", p.name)))
	if err != nil {
		p.m.RecordProviderRequest(ctx, p.name, "llm", "error")
		p.m.RecordProviderError(ctx, p.name, "llm")
		return nil, err
	}
	p.m.RecordProviderRequest(ctx, p.name, "llm", "ok")
	return resp, nil
}

// instrumentedStore wraps a notes.Store with per-op latency histograms.
type instrumentedStore struct {
	inner notes.Store
	m     *observe.Metrics
}

func (s *instrumentedStore) observe(ctx context.Context, op string, start time.Time) {
	s.m.StoreDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("op", op)))
}

func (s *instrumentedStore) Create(ctx context.Context, owner, subjectName, body string) (notes.Record, error) {
	defer s.observe(ctx, "create", time.Now())
	return s.inner.Create(ctx, owner, subjectName, body)
}

func (s *instrumentedStore) Get(ctx context.Context, owner string, id int64) (notes.Record, error) {
	defer s.observe(ctx, "get", time.Now())
	return s.inner.Get(ctx, owner, id)
}

func (s *instrumentedStore) ListByOwner(ctx context.Context, owner string) ([]notes.Record, error) {
	defer s.observe(ctx, "list", time.Now())
	return s.inner.ListByOwner(ctx, owner)
}

func (s *instrumentedStore) Update(ctx context.Context, owner string, id int64, upd notes.Update) (notes.Record, error) {
	defer s.observe(ctx, "update", time.Now())
	return s.inner.Update(ctx, owner, id, upd)
}

func (s *instrumentedStore) Delete(ctx context.Context, owner string, id int64) error {
	defer s.observe(ctx, "delete", time.Now())
	return s.inner.Delete(ctx, owner, id)
}
