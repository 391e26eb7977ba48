package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mustody-console/core/utils"
)

// PushRegistration is the device-side half of a push subscription. The
// private key never leaves the device; endpoint and public keys are what the
// backend receives. ServerKey is the base64url application server key the
// registration was made for.
type PushRegistration struct {
	DeviceID   string
	Endpoint   string
	P256dh     string
	Auth       string
	PrivateKey []byte
	ServerKey  string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type PushStore interface {
	Current(ctx context.Context) (*PushRegistration, error)
	Save(ctx context.Context, reg *PushRegistration) error
	SetActive(ctx context.Context, deviceID string, active bool) error
	Delete(ctx context.Context, deviceID string) error
}

type pushStore struct {
	db  *sql.DB
	enc *utils.Encryptor
}

func NewPushStore(db *sql.DB, enc *utils.Encryptor) PushStore {
	return &pushStore{db: db, enc: enc}
}

// Current returns the most recently updated registration, or nil.
func (s *pushStore) Current(ctx context.Context) (*PushRegistration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, endpoint, p256dh, auth, private_key, server_key, active, created_at, updated_at
		FROM push_registrations ORDER BY updated_at DESC LIMIT 1`)
	var reg PushRegistration
	var active int
	var key []byte
	if err := row.Scan(&reg.DeviceID, &reg.Endpoint, &reg.P256dh, &reg.Auth, &key, &reg.ServerKey, &active, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if s.enc != nil {
		plain, err := s.enc.DecryptBlob(key)
		if err != nil {
			return nil, fmt.Errorf("push registration %s: %w", reg.DeviceID, ErrSealed)
		}
		key = plain
	}
	reg.PrivateKey = key
	reg.Active = active == 1
	return &reg, nil
}

func (s *pushStore) Save(ctx context.Context, reg *PushRegistration) error {
	if reg == nil {
		return errors.New("nil registration")
	}
	now := time.Now().UTC()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now
	key := reg.PrivateKey
	if s.enc != nil {
		blob, err := s.enc.EncryptToBlob(key)
		if err != nil {
			return err
		}
		key = blob
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_registrations(device_id, endpoint, p256dh, auth, private_key, server_key, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		reg.DeviceID, reg.Endpoint, reg.P256dh, reg.Auth, key, reg.ServerKey, boolToInt(reg.Active), reg.CreatedAt, reg.UpdatedAt)
	return err
}

func (s *pushStore) SetActive(ctx context.Context, deviceID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_registrations SET active=?, updated_at=? WHERE device_id=?`,
		boolToInt(active), time.Now().UTC(), deviceID)
	return err
}

func (s *pushStore) Delete(ctx context.Context, deviceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_registrations WHERE device_id=?`, deviceID)
	return err
}
