// Package pgstore implements store.Store against PostgreSQL via pgx/v5,
// for Plane deployments that need durable, shared state across multiple
// Plane instances.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edda-mesh/bifrost-heimdall/internal/store"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a pgxpool-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies connectivity.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables this store needs, if they don't already
// exist. Deployments that prefer a dedicated migration tool can skip this
// and manage schema separately — it's idempotent either way.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("pgstore: migrating: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id     TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	public_key    BYTEA NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	mesh_role     TEXT NOT NULL,
	active        BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS devices_user_id_idx ON devices (user_id);

CREATE TABLE IF NOT EXISTS challenges (
	challenge_id     TEXT PRIMARY KEY,
	issued_to_device TEXT NOT NULL,
	nonce            BYTEA NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	consumed         BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	token_id       TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	subject_device TEXT NOT NULL,
	subject_user   TEXT NOT NULL,
	issued_at      TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	revoked        BOOLEAN NOT NULL,
	payload        JSONB NOT NULL,
	signature      BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS mesh_memberships (
	device        TEXT PRIMARY KEY,
	owner_user    TEXT NOT NULL,
	role          TEXT NOT NULL,
	active        BOOLEAN NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	last_seen     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS mesh_memberships_owner_idx ON mesh_memberships (owner_user);
`

var _ store.Store = (*Store)(nil)

func (s *Store) PutDevice(ctx context.Context, d models.Device) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (device_id, user_id, public_key, registered_at, mesh_role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			user_id = EXCLUDED.user_id, public_key = EXCLUDED.public_key,
			mesh_role = EXCLUDED.mesh_role, active = EXCLUDED.active`,
		d.DeviceID, d.UserID, d.PublicKey, d.RegisteredAt, d.MeshRole, d.Active)
	return err
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	var d models.Device
	row := s.pool.QueryRow(ctx, `
		SELECT device_id, user_id, public_key, registered_at, mesh_role, active
		FROM devices WHERE device_id = $1`, deviceID)
	err := row.Scan(&d.DeviceID, &d.UserID, &d.PublicKey, &d.RegisteredAt, &d.MeshRole, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Device{}, store.ErrNotFound
	}
	return d, err
}

func (s *Store) ListDevicesByUser(ctx context.Context, userID string) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT device_id, user_id, public_key, registered_at, mesh_role, active
		FROM devices WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.UserID, &d.PublicKey, &d.RegisteredAt, &d.MeshRole, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) PutChallenge(c models.Challenge) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO challenges (challenge_id, issued_to_device, nonce, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (challenge_id) DO UPDATE SET consumed = EXCLUDED.consumed`,
		c.ChallengeID, c.IssuedToDevice, c.Nonce, c.ExpiresAt, c.Consumed)
	return err
}

func (s *Store) GetChallenge(challengeID string) (models.Challenge, bool, error) {
	ctx := context.Background()
	var c models.Challenge
	row := s.pool.QueryRow(ctx, `
		SELECT challenge_id, issued_to_device, nonce, expires_at, consumed
		FROM challenges WHERE challenge_id = $1`, challengeID)
	err := row.Scan(&c.ChallengeID, &c.IssuedToDevice, &c.Nonce, &c.ExpiresAt, &c.Consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Challenge{}, false, nil
	}
	if err != nil {
		return models.Challenge{}, false, err
	}
	return c, true, nil
}

func (s *Store) MarkChallengeConsumed(challengeID string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `UPDATE challenges SET consumed = true WHERE challenge_id = $1`, challengeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: challenge %s not found", challengeID)
	}
	return nil
}

func (s *Store) PutToken(t models.Token) error {
	ctx := context.Background()
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tokens (token_id, kind, subject_device, subject_user, issued_at, expires_at, revoked, payload, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_id) DO UPDATE SET revoked = EXCLUDED.revoked`,
		t.TokenID, t.Kind, t.SubjectDevice, t.SubjectUser, t.IssuedAt, t.ExpiresAt, t.Revoked, payload, t.Signature)
	return err
}

func (s *Store) GetToken(tokenID string) (models.Token, bool, error) {
	ctx := context.Background()
	var t models.Token
	var payload []byte
	row := s.pool.QueryRow(ctx, `
		SELECT token_id, kind, subject_device, subject_user, issued_at, expires_at, revoked, payload, signature
		FROM tokens WHERE token_id = $1`, tokenID)
	err := row.Scan(&t.TokenID, &t.Kind, &t.SubjectDevice, &t.SubjectUser, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &payload, &t.Signature)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Token{}, false, nil
	}
	if err != nil {
		return models.Token{}, false, err
	}
	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return models.Token{}, false, err
	}
	return t, true, nil
}

func (s *Store) RevokeToken(tokenID string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET revoked = true WHERE token_id = $1`, tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: token %s not found", tokenID)
	}
	return nil
}

func (s *Store) PutMembership(m models.MeshMembership) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mesh_memberships (device, owner_user, role, active, registered_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device) DO UPDATE SET
			owner_user = EXCLUDED.owner_user, role = EXCLUDED.role,
			active = EXCLUDED.active, last_seen = EXCLUDED.last_seen`,
		m.Device, m.OwnerUser, m.Role, m.Active, m.RegisteredAt, m.LastSeen)
	return err
}

func (s *Store) GetMembership(deviceID string) (models.MeshMembership, bool, error) {
	ctx := context.Background()
	var m models.MeshMembership
	row := s.pool.QueryRow(ctx, `
		SELECT device, owner_user, role, active, registered_at, last_seen
		FROM mesh_memberships WHERE device = $1`, deviceID)
	err := row.Scan(&m.Device, &m.OwnerUser, &m.Role, &m.Active, &m.RegisteredAt, &m.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MeshMembership{}, false, nil
	}
	if err != nil {
		return models.MeshMembership{}, false, err
	}
	return m, true, nil
}

func (s *Store) ListMembershipsByOwner(ownerUser string) ([]models.MeshMembership, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT device, owner_user, role, active, registered_at, last_seen
		FROM mesh_memberships WHERE owner_user = $1`, ownerUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MeshMembership
	for rows.Next() {
		var m models.MeshMembership
		if err := rows.Scan(&m.Device, &m.OwnerUser, &m.Role, &m.Active, &m.RegisteredAt, &m.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
