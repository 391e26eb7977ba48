package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mustody-console/core/store"
	"mustody-console/core/utils"

	"github.com/gofrs/uuid/v5"
)

const authSecretLen = 16

// PermissionPrompt asks the operator whether this device may receive pushes.
type PermissionPrompt func(ctx context.Context) (Permission, error)

type DeviceConfig struct {
	Enabled    bool
	ServiceURL string
}

// DevicePlatform keeps the device half of the subscription (P-256 key pair
// and auth secret) in the local store. Re-subscribing reuses the stored
// registration so the endpoint stays stable.
type DevicePlatform struct {
	cfg    DeviceConfig
	store  store.PushStore
	prompt PermissionPrompt
	logger *utils.Logger

	mu         sync.Mutex
	permission Permission
}

func NewDevicePlatform(cfg DeviceConfig, ps store.PushStore, prompt PermissionPrompt, logger *utils.Logger) *DevicePlatform {
	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	return &DevicePlatform{cfg: cfg, store: ps, prompt: prompt, logger: logger, permission: PermissionDefault}
}

func (d *DevicePlatform) Supported() bool {
	return d != nil && d.cfg.Enabled && d.cfg.ServiceURL != "" && d.store != nil
}

// RequestPermission prompts once; the answer sticks for the lifetime of the
// platform. Without a prompt the permission stays at default.
func (d *DevicePlatform) RequestPermission(ctx context.Context) (Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.permission != PermissionDefault {
		return d.permission, nil
	}
	if d.prompt == nil {
		return PermissionDefault, nil
	}
	p, err := d.prompt(ctx)
	if err != nil {
		return PermissionDefault, err
	}
	if p == PermissionGranted || p == PermissionDenied {
		d.permission = p
	}
	return p, nil
}

// Subscribe returns the stored registration when it was made for the same
// application server key. A registration for another key is replaced, since a
// push service only accepts messages signed by the key it was subscribed with.
func (d *DevicePlatform) Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, bool, error) {
	if !d.Supported() {
		return nil, false, ErrUnsupported
	}
	if _, err := ecdh.P256().NewPublicKey(applicationServerKey); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidServerKey, err)
	}
	serverKey := utils.Base64URL(applicationServerKey)
	current, err := d.store.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	if current != nil {
		if current.ServerKey == serverKey {
			if !current.Active {
				if err := d.store.SetActive(ctx, current.DeviceID, true); err != nil {
					return nil, false, err
				}
			}
			return subscriptionOf(current), false, nil
		}
		if d.logger != nil {
			d.logger.Printf("push server key changed; replacing device registration id=%s", current.DeviceID)
		}
		if err := d.store.Delete(ctx, current.DeviceID); err != nil {
			return nil, false, err
		}
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, false, err
	}
	auth, err := utils.RandBytes(authSecretLen)
	if err != nil {
		return nil, false, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	reg := &store.PushRegistration{
		DeviceID:   id.String(),
		Endpoint:   d.cfg.ServiceURL + "/" + id.String(),
		P256dh:     utils.Base64URL(priv.PublicKey().Bytes()),
		Auth:       utils.Base64URL(auth),
		PrivateKey: priv.Bytes(),
		ServerKey:  serverKey,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.store.Save(ctx, reg); err != nil {
		return nil, false, err
	}
	if d.logger != nil {
		d.logger.Printf("push device registered id=%s", reg.DeviceID)
	}
	return subscriptionOf(reg), true, nil
}

// Unsubscribe removes the stored registration; without one it is a no-op.
func (d *DevicePlatform) Unsubscribe(ctx context.Context) error {
	if d == nil || d.store == nil {
		return nil
	}
	current, err := d.store.Current(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	return d.store.Delete(ctx, current.DeviceID)
}

// Registration returns the stored subscription, or nil when none exists.
func (d *DevicePlatform) Registration(ctx context.Context) (*Subscription, error) {
	if d == nil || d.store == nil {
		return nil, errors.New("push store not configured")
	}
	current, err := d.store.Current(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	return subscriptionOf(current), nil
}

func subscriptionOf(reg *store.PushRegistration) *Subscription {
	return &Subscription{
		Endpoint: reg.Endpoint,
		Keys:     Keys{P256dh: reg.P256dh, Auth: reg.Auth},
	}
}
