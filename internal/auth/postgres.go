package auth

import (
	"context"
	"database/sql"
	"strings"
)

var _ CredentialStore = (*PGStore)(nil)

// PGStore implements CredentialStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const principalColumns = `id, email, role, country_code, password_hash, is_blocked,
	failed_login_attempts, last_failed_login_at, temporary_lock_until,
	refresh_jti, lock_version, created_at, updated_at`

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email=$1`, email)
	return scanPrincipal(row)
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1`, id)
	return scanPrincipal(row)
}

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var (
		p          Principal
		lastFailed sql.NullTime
		lockUntil  sql.NullTime
		refreshJTI sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Email, &p.Role, &p.CountryCode, &p.PasswordHash, &p.IsBlocked,
		&p.FailedLoginAttempts, &lastFailed, &lockUntil,
		&refreshJTI, &p.LockVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastFailed.Valid {
		t := lastFailed.Time
		p.LastFailedLoginAt = &t
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		p.TemporaryLockUntil = &t
	}
	if refreshJTI.Valid {
		p.RefreshJTI = refreshJTI.String
	}
	return &p, nil
}

func (s *PGStore) AdminProfile(ctx context.Context, principalID string) (*AdminProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`select principal_id, admin_role, is_active, two_factor_enabled, two_factor_secret, created_at, updated_at
		 from admin_profiles where principal_id=$1`, principalID)
	var (
		ap     AdminProfile
		secret []byte
	)
	if err := row.Scan(&ap.PrincipalID, &ap.AdminRole, &ap.IsActive, &ap.TwoFactorEnabled, &secret, &ap.CreatedAt, &ap.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ap.TwoFactorSecret = secret
	return &ap, nil
}

func (s *PGStore) UpdateLockoutFields(ctx context.Context, p *Principal) error {
	res, err := s.db.ExecContext(ctx,
		`update principals
		 set failed_login_attempts=$1, last_failed_login_at=$2, temporary_lock_until=$3,
		     lock_version=lock_version+1, updated_at=now()
		 where id=$4 and lock_version=$5`,
		p.FailedLoginAttempts, p.LastFailedLoginAt, p.TemporaryLockUntil,
		p.ID, p.LockVersion,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	p.LockVersion++
	return nil
}

func (s *PGStore) SetRefreshJTI(ctx context.Context, principalID, jti string) error {
	_, err := s.db.ExecContext(ctx,
		`update principals set refresh_jti=$1, updated_at=now() where id=$2`,
		jti, principalID,
	)
	return err
}

func (s *PGStore) RotateRefreshJTI(ctx context.Context, principalID, oldJTI, newJTI string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set refresh_jti=$1, updated_at=now()
		 where id=$2 and refresh_jti=$3`,
		newJTI, principalID, oldJTI,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
