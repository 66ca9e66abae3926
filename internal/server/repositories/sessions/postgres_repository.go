package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// PostgresRepository implements Store on PostgreSQL. A repository bound to a
// transaction (as handed to WithUserLock callbacks) has no beginner.
type PostgresRepository struct {
	beginner dbx.TxBeginner
	db       dbx.DBTX
}

// DB is satisfied by *sql.DB.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{beginner: db, db: db}
}

const sessionColumns = `id, user_id, device_id, device_name, device_type, browser, os,
		 ip_address, location, user_agent, is_active, created_at, expires_at, refresh_token`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.DeviceType, &s.Browser, &s.OS,
		&s.IPAddress, &s.Location, &s.UserAgent, &s.IsActive, &s.CreatedAt, &s.ExpiresAt, &s.RefreshToken)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {

	query :=
		`INSERT INTO sessions (` + sessionColumns + `)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.DeviceID, s.DeviceName, s.DeviceType, s.Browser, s.OS,
		s.IPAddress, s.Location, s.UserAgent, s.IsActive, s.CreatedAt, s.ExpiresAt, s.RefreshToken)

	return dbx.MapError(err)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, dbx.MapError(err)
	}
	return s, nil
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) FindActive(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		 WHERE user_id = $1 AND is_active AND expires_at > $2
		 ORDER BY created_at ASC`
	return r.list(ctx, query, userID, now)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.MapError(err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, dbx.MapError(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.MapError(err)
	}
	return out, nil
}

func (r *PostgresRepository) FindByRefreshToken(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		 WHERE refresh_token = $1 AND is_active AND expires_at > $2`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, token, now))
	if err != nil {
		return nil, dbx.MapError(err)
	}
	return s, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return dbx.MapError(err)
}

// RevokeOldestSession picks and deactivates in one statement. SKIP LOCKED
// keeps two concurrent evictions from landing on the same row.
func (r *PostgresRepository) RevokeOldestSession(ctx context.Context, userID string, now time.Time) (string, error) {

	query :=
		`UPDATE sessions SET is_active = FALSE
		 WHERE id = (
			SELECT id FROM sessions
			WHERE user_id = $1 AND is_active AND expires_at > $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&id); err != nil {
		return "", dbx.MapError(err)
	}
	return id, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND is_active AND expires_at > $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, dbx.MapError(err)
	}
	return n, nil
}

func (r *PostgresRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, dbx.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.MapError(err)
	}
	return n, nil
}

// WithUserLock opens a transaction, locks the user's row and hands fn a
// repository bound to that transaction. Concurrent callers for the same user
// queue on the row lock.
func (r *PostgresRepository) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, repo Repository) error) error {
	if r.beginner == nil {
		return fmt.Errorf("%w: nested user lock", common.ErrorInternal)
	}

	return dbx.WithTx(ctx, r.beginner, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var locked string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if err != nil {
			return fmt.Errorf("lock user: %w", dbx.MapError(err))
		}
		return fn(ctx, &PostgresRepository{db: tx})
	})
}
