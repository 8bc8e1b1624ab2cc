package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var (
	_ Sink        = (*PGSink)(nil)
	_ DeviceStore = (*PGDeviceStore)(nil)
)

// PGSink persists audit and fraud records in PostgreSQL. Both tables are
// append-only: the application never updates or deletes rows.
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) AppendAudit(ctx context.Context, entry *Entry) error {
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, actor_id, actor_email, actor_role, ip_address, action_type,
		   entity_type, entity_id, description, metadata, success, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		entry.ID, entry.ActorID, entry.ActorEmail, entry.ActorRole, entry.IP, entry.Action,
		entry.EntityType, entry.EntityID, entry.Description, meta, entry.Success, entry.CreatedAt,
	)
	return err
}

func (s *PGSink) AppendFraud(ctx context.Context, event *FraudEvent) error {
	meta, _ := json.Marshal(event.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into fraud_events(id, actor_type, actor_id, device_id, ip_address, action_type,
		   description, risk_score, risk_level, country_code, city, metadata, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		event.ID, event.ActorType, event.ActorID, event.DeviceID, event.IP, event.Action,
		event.Description, event.RiskScore, event.RiskLevel, event.CountryCode, event.City,
		meta, event.CreatedAt,
	)
	return err
}

// Query filters the audit trail for compliance review.
type Query struct {
	ActorID    string
	Action     string
	EntityType string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Search returns matching audit entries, newest first.
func (s *PGSink) Search(ctx context.Context, q Query) ([]*Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.ActorID != "" {
		where = append(where, "actor_id="+arg(q.ActorID))
	}
	if q.Action != "" {
		where = append(where, "action_type="+arg(q.Action))
	}
	if q.EntityType != "" {
		where = append(where, "entity_type="+arg(q.EntityType))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= "+arg(q.Since))
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= "+arg(q.Until))
	}

	query := `select id, actor_id, actor_email, actor_role, ip_address, action_type,
		entity_type, entity_id, description, metadata, success, created_at from audit_log`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " order by created_at desc limit " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.ActorRole, &e.IP, &e.Action,
			&e.EntityType, &e.EntityID, &e.Description, &meta, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &e.Metadata)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PGDeviceStore upserts device profiles keyed by (actor_type, actor_id, device_id).
type PGDeviceStore struct {
	db *sql.DB
}

func NewPGDeviceStore(db *sql.DB) *PGDeviceStore {
	return &PGDeviceStore{db: db}
}

func (s *PGDeviceStore) Upsert(ctx context.Context, profile DeviceProfile) error {
	_, err := s.db.ExecContext(ctx,
		`insert into device_profiles(actor_type, actor_id, device_id, last_ip, last_seen_at, seen_count)
		 values($1,$2,$3,$4,$5,1)
		 on conflict (actor_type, actor_id, device_id)
		 do update set last_ip=excluded.last_ip, last_seen_at=excluded.last_seen_at,
		   seen_count=device_profiles.seen_count+1`,
		profile.ActorType, profile.ActorID, profile.DeviceID, profile.LastIP, profile.LastSeenAt,
	)
	return err
}
