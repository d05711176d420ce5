package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
)

const (
	ModeAsync = "async"
	ModeSync  = "sync"

	exportPageSize = model.MaxLimit
)

// Entry is what callers hand to the trail. Empty ActorID and ResourceID
// mean "none".
type Entry struct {
	ActorID    string
	Action     model.AuditAction
	Resource   string
	ResourceID string
	Detail     interface{}
	Origin     string
	Agent      string
}

// Recorder is the write side of the trail. Record never fails from the
// caller's point of view.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Config struct {
	Mode           string
	Shards         int
	QueueSize      int
	EnqueueTimeout time.Duration
	WriteTimeout   time.Duration
	Clock          func() time.Time
}

type Service struct {
	repo       repository.AuditRepository
	dispatcher *Dispatcher
	cfg        Config
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(repo repository.AuditRepository, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &Service{repo: repo, cfg: cfg, log: log, metrics: m}
	if cfg.Mode != ModeSync {
		s.dispatcher = NewDispatcher(cfg.Shards, cfg.QueueSize, cfg.EnqueueTimeout, cfg.WriteTimeout, s.write, s.report)
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) build(ctx context.Context, e Entry) *model.AuditLog {
	if e.Origin == "" && e.Agent == "" {
		o := OriginFrom(ctx)
		e.Origin, e.Agent = o.Address, o.Agent
	}
	return &model.AuditLog{
		ID:            uuid.New(),
		ActorID:       optional(e.ActorID),
		Action:        e.Action,
		Resource:      e.Resource,
		ResourceID:    optional(e.ResourceID),
		Detail:        Sanitize(e.Detail),
		OriginAddress: e.Origin,
		ClientAgent:   e.Agent,
		Timestamp:     s.cfg.Clock(),
	}
}

// Record sanitizes and stores the entry. In async mode it only enqueues.
func (s *Service) Record(ctx context.Context, e Entry) {
	l := s.build(ctx, e)
	if s.dispatcher == nil {
		_ = s.RecordNow(ctx, l)
		return
	}
	if err := s.dispatcher.Enqueue(l); err != nil {
		s.metrics.AuditDropped.Inc()
		s.report(l, err)
		return
	}
	s.metrics.AuditQueueDepth.Set(float64(s.dispatcher.Depth()))
}

// RecordSync writes the entry before returning, whatever the mode. The error
// is already reported; callers use it only to decide on ordering.
func (s *Service) RecordSync(ctx context.Context, e Entry) error {
	return s.RecordNow(ctx, s.build(ctx, e))
}

// RecordNow persists a prepared record inline.
func (s *Service) RecordNow(ctx context.Context, l *model.AuditLog) error {
	// the request may be gone already; the record must still be written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.write(writeCtx, l); err != nil {
		s.report(l, err)
		return err
	}
	return nil
}

func (s *Service) write(ctx context.Context, l *model.AuditLog) error {
	if err := s.repo.Append(ctx, l); err != nil {
		return err
	}
	s.metrics.AuditWrites.Inc()
	return nil
}

// report is the operational error sink. Detail is left out on purpose so
// no PII reaches the log stream.
func (s *Service) report(l *model.AuditLog, err error) {
	s.metrics.AuditWriteFailures.Inc()
	s.log.Error(err, "audit record not persisted",
		"audit_id", l.ID.String(),
		"action", string(l.Action),
		"resource", l.Resource,
		"resource_id", l.SequenceKey(),
	)
}

// Flush waits until records enqueued so far are persisted.
func (s *Service) Flush(ctx context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Flush(ctx)
}

// Close drains the background writers.
func (s *Service) Close(ctx context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Close(ctx)
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter, page model.Pagination) ([]*model.AuditLog, int, error) {
	return s.repo.List(ctx, filter, page.Normalize())
}

// Export streams every matching record as CSV.
func (s *Service) Export(ctx context.Context, filter model.AuditFilter, w io.Writer) (int, error) {
	// pages are read oldest first up to a fixed end, so records appended
	// while exporting neither shift nor repeat rows
	snapshot := s.cfg.Clock()
	if filter.To == nil || filter.To.After(snapshot) {
		filter.To = &snapshot
	}
	filter.Chronological = true

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "sequence", "timestamp", "actor_id", "action", "resource",
		"resource_id", "origin_address", "client_agent",
	}); err != nil {
		return 0, err
	}

	written := 0
	for page := 1; ; page++ {
		logs, total, err := s.repo.List(ctx, filter, model.Pagination{Page: page, Limit: exportPageSize})
		if err != nil {
			return written, fmt.Errorf("export audit logs: %w", err)
		}
		for _, l := range logs {
			if err := cw.Write([]string{
				l.ID.String(),
				strconv.FormatInt(l.Sequence, 10),
				l.Timestamp.Format(time.RFC3339Nano),
				deref(l.ActorID),
				string(l.Action),
				l.Resource,
				deref(l.ResourceID),
				l.OriginAddress,
				l.ClientAgent,
			}); err != nil {
				return written, err
			}
			written++
		}
		if len(logs) == 0 || page*exportPageSize >= total {
			break
		}
	}

	cw.Flush()
	return written, cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
