package classes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classroom-lms/backend/internal/models"
)

const classColumns = `id, title, instructor, course_id, batch_id, COALESCE(zoom_meeting_id,''),
	COALESCE(join_url,''), COALESCE(start_url,''), starts_at, duration_minutes, created_by, created_at`

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	CourseID *uuid.UUID
	BatchID  *uuid.UUID
	From     time.Time
}

// Repository handles scheduled class persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a classes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanClass(row pgx.Row) (*models.ScheduledClass, error) {
	var sc models.ScheduledClass
	err := row.Scan(&sc.ID, &sc.Title, &sc.Instructor, &sc.CourseID, &sc.BatchID, &sc.ZoomMeetingID,
		&sc.JoinURL, &sc.StartURL, &sc.StartsAt, &sc.DurationMinutes, &sc.CreatedBy, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// Create inserts a class and fills ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, sc *models.ScheduledClass) error {
	const q = `INSERT INTO scheduled_classes (title, instructor, course_id, batch_id, zoom_meeting_id, join_url, start_url,
		starts_at, duration_minutes, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), $8, $9, $10)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, sc.Title, sc.Instructor, sc.CourseID, sc.BatchID, sc.ZoomMeetingID, sc.JoinURL, sc.StartURL,
		sc.StartsAt, sc.DurationMinutes, sc.CreatedBy).Scan(&sc.ID, &sc.CreatedAt)
}

// GetByID returns a class by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledClass, error) {
	sc, err := scanClass(r.pool.QueryRow(ctx, `SELECT `+classColumns+` FROM scheduled_classes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

// FindByZoomMeetingID returns the class scheduled for a Zoom meeting, or nil when none exists.
func (r *Repository) FindByZoomMeetingID(ctx context.Context, meetingID string) (*models.ScheduledClass, error) {
	sc, err := scanClass(r.pool.QueryRow(ctx, `SELECT `+classColumns+` FROM scheduled_classes WHERE zoom_meeting_id = $1`, meetingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

// List returns classes ordered by start time.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.ScheduledClass, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.CourseID != nil {
		args = append(args, *f.CourseID)
		where = append(where, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if f.BatchID != nil {
		args = append(args, *f.BatchID)
		where = append(where, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("starts_at >= $%d", len(args)))
	}
	q := `SELECT ` + classColumns + ` FROM scheduled_classes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY starts_at`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ScheduledClass{}
	for rows.Next() {
		sc, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *sc)
	}
	return list, rows.Err()
}

// Delete removes a class. It reports false when nothing was deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scheduled_classes WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
