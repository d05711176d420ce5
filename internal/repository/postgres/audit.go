package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
)

const auditColumns = `
	id, sequence, actor_id, action, resource, resource_id, detail,
	origin_address, client_agent, timestamp`

// Append allocates the sequence number and inserts the record in one
// transaction, so a failed insert never burns a number.
func (r *auditRepository) Append(ctx context.Context, log *model.AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var seq int64
		err := tx.GetContext(ctx, &seq, `
			INSERT INTO audit_sequences (key, value) VALUES ($1, 1)
			ON CONFLICT (key) DO UPDATE SET value = audit_sequences.value + 1
			RETURNING value
		`, log.SequenceKey())
		if err != nil {
			return translate(err, "allocate audit sequence")
		}
		log.Sequence = seq

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_logs (`+auditColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			log.ID,
			log.Sequence,
			log.ActorID,
			log.Action,
			log.Resource,
			log.ResourceID,
			log.Detail,
			log.OriginAddress,
			log.ClientAgent,
			log.Timestamp,
		)
		return translate(err, "insert audit log")
	})
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter, page model.Pagination) ([]*model.AuditLog, int, error) {
	page = page.Normalize()

	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Resource != "" {
		add("resource = $%d", filter.Resource)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, translate(err, "count audit logs")
	}

	order := "timestamp DESC, id DESC"
	if filter.Chronological {
		order = "timestamp, id"
	}
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", order, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	logs := []*model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, translate(err, "list audit logs")
	}
	return logs, total, nil
}

// Rewrite locks the subject's rows, lets fn edit them in memory and writes
// back actor_id and detail only. Sequence, timestamp and resource columns
// are never part of the update.
func (r *auditRepository) Rewrite(ctx context.Context, subject repository.AuditSubject, fn func(*model.AuditLog) bool) (int, error) {
	changed := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		logs := []*model.AuditLog{}
		err := tx.SelectContext(ctx, &logs, `
			SELECT `+auditColumns+` FROM audit_logs
			WHERE ($1 <> '' AND actor_id = $1) OR resource_id = ANY($2)
			ORDER BY timestamp
			FOR UPDATE
		`, subject.ActorID, pq.Array(subject.ResourceIDs))
		if err != nil {
			return translate(err, "select audit logs for rewrite")
		}

		for _, l := range logs {
			if !fn(l) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE audit_logs SET actor_id = $1, detail = $2 WHERE id = $3`,
				l.ActorID, l.Detail, l.ID,
			); err != nil {
				return translate(err, "rewrite audit log")
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
