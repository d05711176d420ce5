package privacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
	"github.com/jwalitptl/care-scheduler/internal/service/rbac"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
)

// piiKeys name detail fields that identify the erased person. Keys are
// compared the same way the audit sanitizer compares them.
var piiKeys = map[string]struct{}{
	"email":       {},
	"firstname":   {},
	"lastname":    {},
	"name":        {},
	"phone":       {},
	"cpf":         {},
	"nationalid":  {},
	"address":     {},
	"dateofbirth": {},
}

// Auditor is the part of the audit trail erasure depends on.
type Auditor interface {
	audit.Recorder
	RecordSync(ctx context.Context, e audit.Entry) error
	Flush(ctx context.Context) error
}

type ErasureService struct {
	users    repository.UserRepository
	patients repository.PatientRepository
	erasures repository.ErasureRepository
	history  repository.AuditRepository
	auditor  Auditor
	timeout  time.Duration
	clock    func() time.Time
	log      *logger.Logger
	metrics  *metrics.Metrics
}

type ErasureOption func(*ErasureService)

func WithClock(clock func() time.Time) ErasureOption {
	return func(s *ErasureService) { s.clock = clock }
}

// WithTimeout bounds every store call made by the workflow.
func WithTimeout(d time.Duration) ErasureOption {
	return func(s *ErasureService) { s.timeout = d }
}

func NewErasureService(repos repository.Repositories, auditor Auditor, log *logger.Logger, m *metrics.Metrics, opts ...ErasureOption) *ErasureService {
	s := &ErasureService{
		users:    repos.Users,
		patients: repos.Patients,
		erasures: repos.Erasures,
		history:  repos.Audit,
		auditor:  auditor,
		timeout:  10 * time.Second,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log.With("component", "erasure"),
		metrics:  m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrIncomplete marks an erasure whose rows are gone but whose erasure record
// or history rewrite has not been stored yet. ResumePending picks it up.
var ErrIncomplete = errors.New("erasure incomplete")

// Token is the stable pseudonym that replaces a user id in audit history.
func Token(userID uuid.UUID) string {
	return "anon-" + Hash(userID.String())[:16]
}

// Erase deletes the patient and its user and anonymizes their audit history.
// A patient that only survives as a pending tombstone is resumed instead.
func (s *ErasureService) Erase(ctx context.Context, patientID uuid.UUID, actor model.Actor) error {
	if !rbac.Authorize(actor.Role, model.ResourcePatients, rbac.ActionDelete) {
		s.auditor.Record(ctx, audit.Entry{
			ActorID:    actor.UserID.String(),
			Action:     model.AuditActionDelete,
			Resource:   model.ResourcePatients,
			ResourceID: patientID.String(),
			Detail:     map[string]interface{}{"erasure": true, "outcome": "denied"},
		})
		s.metrics.Erasures.WithLabelValues("denied").Inc()
		return apperrors.Authorization("only administrators may erase patients")
	}

	tombstone, err := s.tombstone(ctx, patientID, actor)
	if err != nil {
		s.metrics.Erasures.WithLabelValues("failed").Inc()
		return err
	}
	if !tombstone.Pending() {
		return apperrors.NotFound("patient")
	}

	if err := s.complete(ctx, tombstone); err != nil {
		s.metrics.Erasures.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %w", ErrIncomplete, err)
	}
	s.metrics.Erasures.WithLabelValues("completed").Inc()
	return nil
}

// tombstone deletes the rows and records the erasure, or returns the
// tombstone an earlier attempt left behind.
func (s *ErasureService) tombstone(ctx context.Context, patientID uuid.UUID, actor model.Actor) (*model.Erasure, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	patient, err := s.patients.Get(tctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		existing, gerr := s.erasures.Get(tctx, patientID)
		if errors.Is(gerr, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient")
		}
		if gerr != nil {
			return nil, apperrors.Persistence("get erasure", gerr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, apperrors.Persistence("get patient", err)
	}

	user, err := s.users.Get(tctx, patient.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, apperrors.Persistence("get user", err)
	}

	erasure := &model.Erasure{
		PatientID:   patient.ID,
		UserID:      user.ID,
		Token:       Token(user.ID),
		RequestedBy: actor.UserID,
		RequestedAt: s.clock(),
	}
	switch err := s.erasures.Erase(tctx, erasure); {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("patient")
	case errors.Is(err, repository.ErrDuplicate):
		// lost a race with a concurrent erase of the same patient
		existing, gerr := s.erasures.Get(tctx, patientID)
		if gerr != nil {
			return nil, apperrors.Persistence("get erasure", gerr)
		}
		return existing, nil
	case err != nil:
		return nil, apperrors.Persistence("erase patient", err)
	}

	s.log.Info("patient erased", "patient_id", patient.ID.String(), "requested_by", actor.UserID.String())
	return erasure, nil
}

// complete anonymizes the history and closes the tombstone. It is safe to run
// any number of times.
func (s *ErasureService) complete(ctx context.Context, e *model.Erasure) error {
	// the erasure record goes in before the rewrite, and survives a failed
	// first attempt through the tombstone
	if e.RecordedAt == nil {
		if err := s.record(ctx, e); err != nil {
			return err
		}
	}

	// records still queued for the erased user must be on disk before the rewrite
	if err := s.auditor.Flush(ctx); err != nil {
		return apperrors.Persistence("flush audit", err)
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subject := repository.AuditSubject{
		ActorID:     e.UserID.String(),
		ResourceIDs: []string{e.PatientID.String(), e.UserID.String()},
	}
	changed, err := s.history.Rewrite(tctx, subject, AnonymizeRecord(e.UserID.String(), e.Token))
	if err != nil {
		return apperrors.Persistence("anonymize audit history", err)
	}
	if err := s.erasures.MarkCompleted(tctx, e.PatientID, s.clock()); err != nil {
		return apperrors.Persistence("complete erasure", err)
	}
	s.log.Info("audit history anonymized", "patient_id", e.PatientID.String(), "records", changed)
	return nil
}

// record writes the erasure audit record unless an earlier attempt stored it
// without reaching MarkRecorded.
func (s *ErasureService) record(ctx context.Context, e *model.Erasure) error {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	written, err := s.recorded(tctx, e)
	if err != nil {
		return err
	}
	if !written {
		if err := s.auditor.RecordSync(tctx, audit.Entry{
			ActorID:    e.RequestedBy.String(),
			Action:     model.AuditActionDelete,
			Resource:   model.ResourcePatients,
			ResourceID: e.PatientID.String(),
			Detail:     map[string]interface{}{"erasure": true, "anonymizationToken": e.Token},
		}); err != nil {
			return apperrors.Persistence("record erasure", err)
		}
	}

	at := s.clock()
	if err := s.erasures.MarkRecorded(tctx, e.PatientID, at); err != nil {
		return apperrors.Persistence("mark erasure recorded", err)
	}
	e.RecordedAt = &at
	return nil
}

func (s *ErasureService) recorded(ctx context.Context, e *model.Erasure) (bool, error) {
	logs, _, err := s.history.List(ctx, model.AuditFilter{
		Resource:   model.ResourcePatients,
		ResourceID: e.PatientID.String(),
		Action:     model.AuditActionDelete,
	}, model.Pagination{Page: 1, Limit: model.MaxLimit})
	if err != nil {
		return false, apperrors.Persistence("find erasure record", err)
	}
	for _, l := range logs {
		if erasure, _ := l.Detail["erasure"].(bool); erasure && l.Detail["anonymizationToken"] == e.Token {
			return true, nil
		}
	}
	return false, nil
}

// ResumePending finishes erasures interrupted after their tombstone was
// written. It returns how many were completed.
func (s *ErasureService) ResumePending(ctx context.Context) (int, error) {
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	pending, err := s.erasures.ListPending(lctx)
	cancel()
	if err != nil {
		return 0, apperrors.Persistence("list pending erasures", err)
	}

	done := 0
	var errs []error
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.complete(ctx, e); err != nil {
			s.metrics.Erasures.WithLabelValues("failed").Inc()
			s.log.Error(err, "resume erasure", "patient_id", e.PatientID.String())
			errs = append(errs, err)
			continue
		}
		s.metrics.Erasures.WithLabelValues("resumed").Inc()
		done++
	}
	return done, errors.Join(errs...)
}

// AnonymizeRecord returns the rewrite applied to the erased user's history:
// their actor id becomes the token and identifying detail values are
// replaced with it. Already rewritten records report no change.
func AnonymizeRecord(userID, token string) func(*model.AuditLog) bool {
	return func(l *model.AuditLog) bool {
		changed := false
		if l.ActorID != nil && *l.ActorID == userID {
			l.ActorID = &token
			changed = true
		}
		if scrub(map[string]interface{}(l.Detail), token) {
			changed = true
		}
		return changed
	}
}

func scrub(v interface{}, token string) bool {
	changed := false
	switch val := v.(type) {
	case model.JSONMap:
		return scrub(map[string]interface{}(val), token)
	case map[string]interface{}:
		for k, inner := range val {
			if isPII(k) {
				if s, ok := inner.(string); ok && s == token {
					continue
				}
				if inner == nil {
					continue
				}
				val[k] = token
				changed = true
				continue
			}
			if scrub(inner, token) {
				changed = true
			}
		}
	case []interface{}:
		for _, inner := range val {
			if scrub(inner, token) {
				changed = true
			}
		}
	}
	return changed
}

func isPII(key string) bool {
	_, ok := piiKeys[audit.NormalizeKey(key)]
	return ok
}
