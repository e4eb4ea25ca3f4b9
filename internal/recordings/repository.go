package recordings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classroom-lms/backend/internal/models"
)

// ErrDuplicateRecording is returned by Insert when a recording for the same source file already exists.
var ErrDuplicateRecording = errors.New("recording already exists for source file")

const uniqueViolation = "23505"

const recordingColumns = `id, source_file_id, meeting_id, title, instructor, duration, occurred_at,
	play_url, download_url, file_size, course_id, batch_id, archive_status, archive_key, created_at, updated_at`

// ListFilter narrows List. Nil fields are ignored.
type ListFilter struct {
	CourseID *uuid.UUID
	BatchID  *uuid.UUID
	Limit    int
	Offset   int
}

// Patch holds admin edits. Nil fields are left unchanged; ClearCourse/ClearBatch null the column.
type Patch struct {
	Title       *string
	Instructor  *string
	CourseID    *uuid.UUID
	BatchID     *uuid.UUID
	ClearCourse bool
	ClearBatch  bool
}

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.SourceFileID, &rec.MeetingID, &rec.Title, &rec.Instructor, &rec.Duration, &rec.OccurredAt,
		&rec.PlayURL, &rec.DownloadURL, &rec.FileSize, &rec.CourseID, &rec.BatchID, &rec.ArchiveStatus, &rec.ArchiveKey,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ExistsBySourceFileID reports whether a recording was already ingested for the Zoom file id.
func (r *Repository) ExistsBySourceFileID(ctx context.Context, sourceFileID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM recordings WHERE source_file_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, sourceFileID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert stores a new recording and fills ID and timestamps. A unique violation on
// source_file_id maps to ErrDuplicateRecording.
func (r *Repository) Insert(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (source_file_id, meeting_id, title, instructor, duration, occurred_at,
		play_url, download_url, file_size, course_id, batch_id, archive_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	if rec.ArchiveStatus == "" {
		rec.ArchiveStatus = models.ArchiveStatusNone
	}
	err := r.pool.QueryRow(ctx, q, rec.SourceFileID, rec.MeetingID, rec.Title, rec.Instructor, rec.Duration, rec.OccurredAt,
		rec.PlayURL, rec.DownloadURL, rec.FileSize, rec.CourseID, rec.BatchID, rec.ArchiveStatus).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateRecording
	}
	return err
}

// GetByID returns a recording by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// List returns recordings newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Recording, error) {
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
	q := `SELECT ` + recordingColumns + ` FROM recordings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY occurred_at DESC NULLS LAST, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// Update applies an admin patch and returns the updated row, or nil when the recording does not exist.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p Patch) (*models.Recording, error) {
	const q = `UPDATE recordings SET
		title = COALESCE($2, title),
		instructor = COALESCE($3, instructor),
		course_id = CASE WHEN $6::boolean THEN NULL ELSE COALESCE($4, course_id) END,
		batch_id = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($5, batch_id) END,
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id, p.Title, p.Instructor, p.CourseID, p.BatchID, p.ClearCourse, p.ClearBatch))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Delete removes a recording. It reports false when nothing was deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetArchiveStatus sets archive_status.
func (r *Repository) SetArchiveStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE recordings SET archive_status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// SetArchiveResult records the S3 key of a completed archive.
func (r *Repository) SetArchiveResult(ctx context.Context, id uuid.UUID, key string, fileSize int64) error {
	const q = `UPDATE recordings SET archive_key = $1, archive_status = $2,
		file_size = CASE WHEN $3::bigint > 0 THEN $3::bigint ELSE file_size END, updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, key, models.ArchiveStatusArchived, fileSize, id)
	return err
}
