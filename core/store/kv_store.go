package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mustody-console/core/utils"
)

const (
	KeyToken = "auth.token"
	KeyUser  = "auth.user"

	keySalt = "store.salt"
)

// ErrSealed is returned when a sealed value cannot be opened, either because
// the store secret changed or because the row was tampered with.
var ErrSealed = errors.New("sealed value cannot be opened")

// KVStore is the durable client key-value state (the bearer token and the
// user snapshot). Values written through a sealing store are encrypted.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type kvStore struct {
	db  *sql.DB
	enc *utils.Encryptor
}

// NewKVStore returns a store that seals values with enc; a nil enc stores
// plaintext.
func NewKVStore(db *sql.DB, enc *utils.Encryptor) KVStore {
	return &kvStore{db: db, enc: enc}
}

// OpenSealer derives the sealing key from secret and the per-database salt,
// creating the salt on first use. An empty secret yields a nil encryptor.
func OpenSealer(ctx context.Context, db *sql.DB, secret string) (*utils.Encryptor, error) {
	if secret == "" {
		return nil, nil
	}
	salt, err := loadOrCreateSalt(ctx, db)
	if err != nil {
		return nil, err
	}
	return utils.NewEncryptorFromSecret(secret, salt)
}

func loadOrCreateSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	var raw []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key=?`, keySalt).Scan(&raw)
	if err == nil && len(raw) >= utils.KeySaltLen {
		return raw, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	salt, err := utils.RandBytes(utils.KeySaltLen)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO client_state(key, value, sealed, updated_at) VALUES(?,?,0,?)`, keySalt, salt, time.Now().UTC()); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	var raw []byte
	var sealed int
	err := s.db.QueryRowContext(ctx, `SELECT value, sealed FROM client_state WHERE key=?`, key).Scan(&raw, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if sealed == 0 {
		return string(raw), true, nil
	}
	if s.enc == nil {
		return "", false, fmt.Errorf("%s: %w", key, ErrSealed)
	}
	plain, err := s.enc.DecryptBlob(raw)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", key, ErrSealed)
	}
	return string(plain), true, nil
}

func (s *kvStore) Set(ctx context.Context, key, value string) error {
	raw := []byte(value)
	sealed := false
	if s.enc != nil {
		blob, err := s.enc.EncryptToBlob(raw)
		if err != nil {
			return err
		}
		raw = blob
		sealed = true
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO client_state(key, value, sealed, updated_at) VALUES(?,?,?,?)`,
		key, raw, boolToInt(sealed), time.Now().UTC())
	return err
}

func (s *kvStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE key=?`, k); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
