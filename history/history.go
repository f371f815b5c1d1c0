// Package history keeps a journal of solved calibrations in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"
	_ "modernc.org/sqlite"

	"handeyecal/rigid"
	"handeyecal/solver"
)

// schema.sql creates the calibrations table if it is missing.
//
//go:embed schema.sql
var schemaSQL string

// Entry is one solved calibration.
type Entry struct {
	ID               string          `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	SolverID         string          `json:"solver"`
	Mount            string          `json:"mount_type"`
	FromFrame        string          `json:"from_frame"`
	ToFrame          string          `json:"to_frame"`
	Samples          int             `json:"samples"`
	Transform        rigid.Transform `json:"-"`
	TranslationError float64         `json:"translation_error"`
	RotationError    float64         `json:"rotation_error_rad"`
}

// FromResult builds an entry for a solved result published from one frame to another.
func FromResult(res solver.Result, from, to string) Entry {
	return Entry{
		SolverID:         res.SolverID,
		Mount:            res.Mount.String(),
		FromFrame:        from,
		ToFrame:          to,
		Samples:          res.Samples,
		Transform:        res.CameraRobot,
		TranslationError: res.Error.Translation,
		RotationError:    res.Error.Rotation,
	}
}

// DB is the calibration journal.
type DB struct {
	*sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "creating calibration schema"), db.Close())
	}
	return &DB{db}, nil
}

// Record stores e, assigning an id and timestamp when they are unset, and returns the stored entry.
func (db *DB) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t, q := e.Transform.Translation, e.Transform.Rotation
	query := `
		INSERT INTO calibrations (
			id, created_at_ns, solver_id, mount_type, from_frame, to_frame, samples,
			tx, ty, tz, qx, qy, qz, qw, translation_error, rotation_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		e.ID, e.CreatedAt.UnixNano(), e.SolverID, e.Mount, e.FromFrame, e.ToFrame, e.Samples,
		t.X, t.Y, t.Z, q.Imag, q.Jmag, q.Kmag, q.Real, e.TranslationError, e.RotationError,
	)
	if err != nil {
		return Entry{}, errors.Wrap(err, "failed to insert calibration")
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at_ns, solver_id, mount_type, from_frame, to_frame, samples,
			tx, ty, tz, qx, qy, qz, qw, translation_error, rotation_error
		FROM calibrations
		ORDER BY created_at_ns DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying calibrations")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
			t       r3.Vector
			q       quat.Number
		)
		if err := rows.Scan(
			&e.ID, &created, &e.SolverID, &e.Mount, &e.FromFrame, &e.ToFrame, &e.Samples,
			&t.X, &t.Y, &t.Z, &q.Imag, &q.Jmag, &q.Kmag, &q.Real, &e.TranslationError, &e.RotationError,
		); err != nil {
			return nil, errors.Wrap(err, "scanning calibration")
		}
		e.CreatedAt = time.Unix(0, created)
		e.Transform = rigid.New(q, t)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
