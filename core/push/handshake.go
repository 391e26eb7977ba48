package push

import (
	"context"
	"crypto/ecdh"
	"fmt"
	"strings"
	"sync"

	"mustody-console/core/utils"
)

// Subscriber drives the opt-in handshake. Stages run strictly in order:
// capability check, permission, registration, backend registration. A failed
// stage aborts the run and rolls back the device registration. Nothing is
// retried automatically.
type Subscriber struct {
	platform  Platform
	backend   Backend
	serverKey string
	logger    *utils.Logger

	mu       sync.Mutex
	state    State
	running  bool
	observer func(State)
}

// NewSubscriber uses serverKey as the application server key when set and
// otherwise asks the backend for it.
func NewSubscriber(platform Platform, backend Backend, serverKey string, logger *utils.Logger) *Subscriber {
	return &Subscriber{
		platform:  platform,
		backend:   backend,
		serverKey: strings.TrimSpace(serverKey),
		logger:    logger,
		state:     StateIdle,
	}
}

// SetObserver installs a callback invoked on every stage transition.
func (s *Subscriber) SetObserver(fn func(State)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) Subscribe(ctx context.Context) Result {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{State: StateFailed, Err: ErrInProgress}
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.transition(StateCapabilityCheck)
	if s.platform == nil || !s.platform.Supported() {
		s.transition(StateUnsupported)
		if s.logger != nil {
			s.logger.Debugf("push unsupported on this device")
		}
		return Result{State: StateUnsupported, Err: ErrUnsupported}
	}

	s.transition(StatePermission)
	perm, err := s.platform.RequestPermission(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("permission: %w", err), false)
	}
	if perm != PermissionGranted {
		s.transition(StateDenied)
		if s.logger != nil {
			s.logger.Debugf("push permission %s", perm)
		}
		return Result{State: StateDenied, Err: ErrPermissionDenied}
	}

	s.transition(StateRegistration)
	key, err := s.applicationServerKey(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("registration: %w", err), false)
	}
	sub, created, err := s.platform.Subscribe(ctx, key)
	if err != nil {
		return s.fail(fmt.Errorf("registration: %w", err), false)
	}
	if sub == nil {
		err = fmt.Errorf("platform returned no subscription")
	} else {
		err = sub.Validate()
	}
	if err != nil {
		return s.fail(fmt.Errorf("registration: %w", err), created)
	}

	// Only a registration made by this run is undone; an existing one is
	// still known to the backend.
	s.transition(StateBackendRegistration)
	if s.backend == nil {
		return s.fail(fmt.Errorf("backend registration: no backend"), created)
	}
	if err := s.backend.SubscribePush(ctx, *sub); err != nil {
		return s.fail(fmt.Errorf("backend registration: %w", err), created)
	}

	s.transition(StateActive)
	if s.logger != nil {
		s.logger.Printf("push subscription active endpoint=%s", sub.Endpoint)
	}
	return Result{State: StateActive, Subscription: sub}
}

func (s *Subscriber) applicationServerKey(ctx context.Context) ([]byte, error) {
	raw := s.serverKey
	if raw == "" {
		if s.backend == nil {
			return nil, ErrNoServerKey
		}
		k, err := s.backend.VAPIDPublicKey(ctx)
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(k)
	}
	if raw == "" {
		return nil, ErrNoServerKey
	}
	key, err := DecodeServerKey(raw)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// DecodeServerKey parses a base64url application server key and checks it is
// an uncompressed P-256 point.
func DecodeServerKey(raw string) ([]byte, error) {
	key, err := utils.DecodeBase64URL(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServerKey, err)
	}
	if _, err := ecdh.P256().NewPublicKey(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServerKey, err)
	}
	return key, nil
}

func (s *Subscriber) fail(err error, rollback bool) Result {
	if rollback {
		if uerr := s.platform.Unsubscribe(context.Background()); uerr != nil && s.logger != nil {
			s.logger.Errorf("push rollback failed: %v", uerr)
		}
	}
	s.transition(StateFailed)
	if s.logger != nil {
		s.logger.Errorf("push subscription failed: %v", err)
	}
	return Result{State: StateFailed, Err: err}
}

func (s *Subscriber) transition(next State) {
	s.mu.Lock()
	s.state = next
	fn := s.observer
	s.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}
