package api

import (
	"context"
	"errors"

	"mustody-console/core/utils"
)

type BackgroundWorker interface {
	StartWithContext(context.Context)
	StopWithContext(context.Context) error
}

type BackgroundController interface {
	Start(context.Context)
	Stop(context.Context) error
}

// backgroundManager starts workers in order and stops them in reverse,
// collecting every stop error.
type backgroundManager struct {
	logger  *utils.Logger
	workers []BackgroundWorker
}

func newBackgroundManager(logger *utils.Logger, workers ...BackgroundWorker) *backgroundManager {
	out := make([]BackgroundWorker, 0, len(workers))
	for _, w := range workers {
		if w == nil {
			continue
		}
		out = append(out, w)
	}
	return &backgroundManager{logger: logger, workers: out}
}

func BuildBackgroundController(logger *utils.Logger, workers ...BackgroundWorker) BackgroundController {
	return newBackgroundManager(logger, workers...)
}

func (m *backgroundManager) Start(ctx context.Context) {
	if m == nil {
		return
	}
	for _, w := range m.workers {
		w.StartWithContext(ctx)
	}
}

func (m *backgroundManager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	for i := len(m.workers) - 1; i >= 0; i-- {
		if err := m.workers[i].StopWithContext(ctx); err != nil {
			if m.logger != nil {
				m.logger.Errorf("stop worker: %v", err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
