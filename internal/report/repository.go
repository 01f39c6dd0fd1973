package report

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the referenced report does not exist or is
// already resolved.
var ErrNotFound = errors.New("report not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, rep *Report) (*Report, error) {
	query := `INSERT INTO reports (reporter_id, target_id, category, reason, priority)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, status, created_at`
	err := r.db.QueryRowContext(ctx, query,
		rep.ReporterID, rep.TargetID, rep.Category, rep.Reason, rep.Priority).
		Scan(&rep.ID, &rep.Status, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// Resolve closes an open report and returns the full row, including the
// reporter to notify.
func (r *Repository) Resolve(ctx context.Context, id, adminID uuid.UUID, resolution string) (*Report, error) {
	rep := &Report{}
	query := `UPDATE reports
	          SET status = 'resolved', resolved_by = $2, resolution = $3, resolved_at = NOW()
	          WHERE id = $1 AND status = 'open'
	          RETURNING id, reporter_id, target_id, category, reason, priority, status,
	                    resolved_by, resolution, created_at, resolved_at`
	err := r.db.QueryRowContext(ctx, query, id, adminID, resolution).
		Scan(&rep.ID, &rep.ReporterID, &rep.TargetID, &rep.Category, &rep.Reason,
			&rep.Priority, &rep.Status, &rep.ResolvedBy, &rep.Resolution,
			&rep.CreatedAt, &rep.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// ListOpen returns unresolved reports, oldest first.
func (r *Repository) ListOpen(ctx context.Context) ([]Report, error) {
	query := `SELECT id, reporter_id, target_id, category, reason, priority, status, created_at
	          FROM reports
	          WHERE status = 'open'
	          ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.ReporterID, &rep.TargetID, &rep.Category,
			&rep.Reason, &rep.Priority, &rep.Status, &rep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
