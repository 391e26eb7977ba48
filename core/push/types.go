// Package push implements the push-subscription opt-in handshake, a device
// platform that holds the subscription keys, and rendering of incoming push
// events into display notifications.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mustody-console/core/utils"
)

type State string

const (
	StateIdle                State = "idle"
	StateCapabilityCheck     State = "capability_check"
	StatePermission          State = "permission"
	StateRegistration        State = "registration"
	StateBackendRegistration State = "backend_registration"
	StateActive              State = "active"

	StateUnsupported State = "unsupported"
	StateDenied      State = "denied"
	StateFailed      State = "failed"
)

// Terminal reports whether the handshake stops in s.
func (s State) Terminal() bool {
	switch s {
	case StateActive, StateUnsupported, StateDenied, StateFailed:
		return true
	}
	return false
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var (
	ErrUnsupported      = errors.New("push not supported")
	ErrPermissionDenied = errors.New("push permission denied")
	ErrInProgress       = errors.New("push subscription already in progress")
	ErrInvalidServerKey = errors.New("invalid application server key")
	ErrNoServerKey      = errors.New("no application server key")
)

type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is what the backend stores to reach this device. Keys are
// base64url without padding.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("subscription: endpoint: %w", utils.ErrRequired)
	}
	if strings.Contains(s.Keys.P256dh+s.Keys.Auth, "=") {
		return errors.New("subscription: keys must be unpadded base64url")
	}
	p256, err := utils.DecodeBase64URL(s.Keys.P256dh)
	if err != nil || len(p256) != 65 {
		return errors.New("subscription: invalid p256dh key")
	}
	auth, err := utils.DecodeBase64URL(s.Keys.Auth)
	if err != nil || len(auth) != 16 {
		return errors.New("subscription: invalid auth secret")
	}
	return nil
}

// Platform is the device push capability: support detection, the permission
// prompt and the registration that yields a subscription. Subscribe reports
// whether it created the registration or returned one that already existed;
// on error it leaves nothing behind.
type Platform interface {
	Supported() bool
	RequestPermission(ctx context.Context) (Permission, error)
	Subscribe(ctx context.Context, applicationServerKey []byte) (sub *Subscription, created bool, err error)
	Unsubscribe(ctx context.Context) error
}

// Backend is the slice of the REST client the handshake needs.
type Backend interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	SubscribePush(ctx context.Context, sub Subscription) error
}

// Result is where a handshake ended. Err is nil only for StateActive.
type Result struct {
	State        State
	Subscription *Subscription
	Err          error
}
