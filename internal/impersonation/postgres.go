package impersonation

import (
	"context"
	"database/sql"
	"errors"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("impersonation: session not found")

var _ Store = (*PGStore)(nil)

// PGStore persists impersonation sessions in PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, impersonator_admin_id, target_user_id, mode, status, is_active,
	reason, started_at, expires_at, ended_at, ended_by`

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into impersonation_sessions(`+sessionColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sess.ID, sess.ImpersonatorAdminID, sess.TargetUserID, sess.Mode, sess.Status, sess.IsActive,
		sess.Reason, sess.StartedAt, sess.ExpiresAt, sess.EndedAt, sess.EndedBy,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from impersonation_sessions where id=$1`, id)
	return scanSession(row.Scan)
}

func (s *PGStore) Update(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`update impersonation_sessions
		 set status=$1, is_active=$2, ended_at=$3, ended_by=$4
		 where id=$5`,
		sess.Status, sess.IsActive, sess.EndedAt, sess.EndedBy, sess.ID,
	)
	return err
}

func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from impersonation_sessions order by started_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(scan func(dest ...any) error) (*Session, error) {
	var (
		sess    Session
		endedAt sql.NullTime
		endedBy sql.NullString
	)
	err := scan(&sess.ID, &sess.ImpersonatorAdminID, &sess.TargetUserID, &sess.Mode, &sess.Status,
		&sess.IsActive, &sess.Reason, &sess.StartedAt, &sess.ExpiresAt, &endedAt, &endedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if endedBy.Valid {
		sess.EndedBy = endedBy.String
	}
	return &sess, nil
}
