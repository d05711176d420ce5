package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
)

type AuditStore struct {
	db *DB
}

func copyAudit(l *model.AuditLog) *model.AuditLog {
	cp := *l
	if l.ActorID != nil {
		v := *l.ActorID
		cp.ActorID = &v
	}
	if l.ResourceID != nil {
		v := *l.ResourceID
		cp.ResourceID = &v
	}
	cp.Detail = l.Detail.Clone()
	return &cp
}

func (s *AuditStore) Append(ctx context.Context, log *model.AuditLog) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	key := log.SequenceKey()
	s.db.sequences[key]++
	log.Sequence = s.db.sequences[key]

	s.db.audit = append(s.db.audit, copyAudit(log))
	return nil
}

func (s *AuditStore) List(ctx context.Context, filter model.AuditFilter, page model.Pagination) ([]*model.AuditLog, int, error) {
	if err := alive(ctx); err != nil {
		return nil, 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	matched := make([]*model.AuditLog, 0)
	for _, l := range s.db.audit {
		if filter.ActorID != "" && (l.ActorID == nil || *l.ActorID != filter.ActorID) {
			continue
		}
		if filter.Resource != "" && l.Resource != filter.Resource {
			continue
		}
		if filter.ResourceID != "" && (l.ResourceID == nil || *l.ResourceID != filter.ResourceID) {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.From != nil && l.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && l.Timestamp.After(*filter.To) {
			continue
		}
		matched = append(matched, copyAudit(l))
	}

	// newest first unless asked otherwise; ties broken by id
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Chronological {
			a, b = b, a
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID.String() > b.ID.String()
	})
	return paginate(matched, page), len(matched), nil
}

func (s *AuditStore) Rewrite(ctx context.Context, subject repository.AuditSubject, fn func(*model.AuditLog) bool) (int, error) {
	if err := alive(ctx); err != nil {
		return 0, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	resources := make(map[string]struct{}, len(subject.ResourceIDs))
	for _, id := range subject.ResourceIDs {
		resources[id] = struct{}{}
	}

	changed := 0
	for i, l := range s.db.audit {
		byActor := subject.ActorID != "" && l.ActorID != nil && *l.ActorID == subject.ActorID
		_, byResource := resources[derefString(l.ResourceID)]
		if !byActor && !(byResource && l.ResourceID != nil) {
			continue
		}
		cp := copyAudit(l)
		if fn(cp) {
			// identity fields are never rewritten
			cp.ID, cp.Sequence, cp.Timestamp = l.ID, l.Sequence, l.Timestamp
			cp.Action, cp.Resource, cp.ResourceID = l.Action, l.Resource, l.ResourceID
			s.db.audit[i] = cp
			changed++
		}
	}
	return changed, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type ErasureStore struct {
	db *DB
}

func (s *ErasureStore) Erase(ctx context.Context, erasure *model.Erasure) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.patients[erasure.PatientID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.db.erasures[erasure.PatientID]; ok {
		return repository.ErrDuplicate
	}
	delete(s.db.patients, erasure.PatientID)
	delete(s.db.users, erasure.UserID)
	cp := *erasure
	s.db.erasures[erasure.PatientID] = &cp
	return nil
}

func (s *ErasureStore) Get(ctx context.Context, patientID uuid.UUID) (*model.Erasure, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	e, ok := s.db.erasures[patientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *ErasureStore) ListPending(ctx context.Context) ([]*model.Erasure, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	pending := make([]*model.Erasure, 0)
	for _, e := range s.db.erasures {
		if e.Pending() {
			cp := *e
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].RequestedAt.Before(pending[j].RequestedAt) })
	return pending, nil
}

func (s *ErasureStore) MarkRecorded(ctx context.Context, patientID uuid.UUID, at time.Time) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	e, ok := s.db.erasures[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	e.RecordedAt = &at
	return nil
}

func (s *ErasureStore) MarkCompleted(ctx context.Context, patientID uuid.UUID, at time.Time) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	e, ok := s.db.erasures[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	e.CompletedAt = &at
	return nil
}
