package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"mustody-console/api"
	"mustody-console/config"
	"mustody-console/core/backend"
	"mustody-console/core/notify"
	"mustody-console/core/push"
	"mustody-console/core/rbac"
	"mustody-console/core/scheduler"
	"mustody-console/core/session"
	"mustody-console/core/store"
	"mustody-console/core/utils"
)

type Options struct {
	// Prompt answers the push permission request. Nil leaves permission at
	// default, which the handshake treats as declined.
	Prompt push.PermissionPrompt
	// Navigate receives the login path when a session is force-ended.
	Navigate func(path string)
}

// Runtime is the composed console: store, backend client, session, inbox,
// push and the local server, plus the background jobs that drive them.
type Runtime struct {
	DB       *sql.DB
	Backend  *backend.Client
	Session  *session.Manager
	Inbox    *notify.Manager
	Device   *push.DevicePlatform
	Push     *push.Subscriber
	Displays *push.DisplayQueue
	Server   *api.Server
	Jobs     []*scheduler.Job

	background api.BackgroundController

	mu       sync.Mutex
	bgCancel context.CancelFunc
}

func InitRuntime(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger, opts Options) (*Runtime, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	rt, err := compose(ctx, cfg, db, logger, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return rt, nil
}

func compose(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *utils.Logger, opts Options) (*Runtime, error) {
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	sealer, err := store.OpenSealer(ctx, db, cfg.Store.Secret)
	if err != nil {
		return nil, fmt.Errorf("store sealer: %w", err)
	}
	if sealer == nil && logger != nil {
		logger.Warnf("store.secret not set; client state is stored unsealed")
	}

	client := backend.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	sess := session.NewManager(store.NewKVStore(db, sealer), client, logger)
	sess.SetLoginPath(cfg.Session.LoginPath)
	sess.SetNavigator(func(path string) {
		if logger != nil {
			logger.Printf("session ended; navigate to %s", path)
		}
		if opts.Navigate != nil {
			opts.Navigate(path)
		}
	})
	client.SetTokenSource(sess.Token)
	client.SetUnauthorizedHandler(func() { sess.HandleUnauthorized() })

	inbox := notify.NewManager(client, logger)
	sess.Subscribe(func(st session.State) {
		if !st.Authenticated {
			inbox.Reset()
		}
	})
	if err := sess.Hydrate(ctx); err != nil && logger != nil {
		logger.Warnf("session hydrate: %v", err)
	}

	device := push.NewDevicePlatform(push.DeviceConfig{
		Enabled:    cfg.Push.Enabled,
		ServiceURL: cfg.Push.ServiceURL,
	}, store.NewPushStore(db, sealer), opts.Prompt, logger)
	subscriber := push.NewSubscriber(device, client, cfg.Push.VAPIDPublicKey, logger)
	displays := push.NewDisplayQueue(0)

	guard, err := rbac.NewGuard(rbac.DefaultRoutes())
	if err != nil {
		return nil, fmt.Errorf("route guard: %w", err)
	}

	jobs := []*scheduler.Job{
		session.NewRefreshJob(sess, cfg.Session.RefreshInterval, logger),
		notify.NewPoller(inbox, cfg.Notifications.PollInterval, sess.Authenticated, logger),
	}
	srv, err := api.NewServer(cfg, api.Deps{
		DB:       db,
		Session:  sess,
		Auth:     client,
		Inbox:    inbox,
		Push:     subscriber,
		Displays: displays,
		Guard:    guard,
		Workers:  jobs,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	workers := make([]api.BackgroundWorker, 0, len(jobs))
	for _, j := range jobs {
		workers = append(workers, j)
	}
	return &Runtime{
		DB:         db,
		Backend:    client,
		Session:    sess,
		Inbox:      inbox,
		Device:     device,
		Push:       subscriber,
		Displays:   displays,
		Server:     srv,
		Jobs:       jobs,
		background: api.BuildBackgroundController(logger, workers...),
	}, nil
}

func (r *Runtime) StartBackground(ctx context.Context) {
	if r == nil || r.background == nil {
		return
	}
	r.mu.Lock()
	if r.bgCancel != nil {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.bgCancel = cancel
	r.mu.Unlock()
	r.background.Start(runCtx)
}

func (r *Runtime) StopBackground(ctx context.Context) error {
	if r == nil || r.background == nil {
		return nil
	}
	r.mu.Lock()
	cancel := r.bgCancel
	r.bgCancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.background.Stop(ctx)
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
