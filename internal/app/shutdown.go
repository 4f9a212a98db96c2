package app

import (
	"context"
	"fmt"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Shutdown stops all components in reverse dependency order:
//  1. Stops the cron timer, so nothing new is dispatched
//  2. Stops the heartbeat checker
//  3. Stops the worker pool, waiting for running jobs
//  4. Stops the metrics endpoint and the Telegram sender
//  5. Stops the message bus
//
// It is safe to call more than once.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.shutdownInternal()
}

// Restart shuts down and initializes again without leaving the process.
// Only one restart runs at a time.
func (a *App) Restart() error {
	a.restartMutex.Lock()
	defer a.restartMutex.Unlock()

	a.logger.Info("restarting application")

	a.mu.Lock()
	err := a.shutdownInternal()
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}

	if err := a.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to reinitialize: %w", err)
	}
	if err := a.StartMessageProcessing(a.ctx); err != nil {
		return fmt.Errorf("failed to restart message processing: %w", err)
	}

	a.logger.Info("application restarted")
	return nil
}

// shutdownInternal expects a.mu to be held.
func (a *App) shutdownInternal() error {
	if !a.started {
		return nil
	}

	if a.cronService != nil {
		if err := a.cronService.Stop(); err != nil {
			a.logger.Error("failed to stop cron scheduler", err)
		}
	}

	if a.heartbeat != nil {
		if err := a.heartbeat.Stop(); err != nil {
			a.logger.Error("failed to stop heartbeat checker", err)
		}
	}

	// In-flight jobs finish before the bus and the senders go away, so their
	// announcements still have somewhere to go.
	if a.workerPool != nil {
		a.workerPool.Stop()
	}

	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsSrv.Stop(ctx); err != nil {
			a.logger.Error("failed to stop metrics server", err)
		}
		cancel()
	}

	if a.telegram != nil {
		if err := a.telegram.Stop(); err != nil {
			a.logger.Error("failed to stop telegram sender", err)
		}
	}

	a.cancel()

	var busErr error
	if a.messageBus != nil && a.messageBus.IsStarted() {
		if busErr = a.messageBus.Stop(); busErr != nil {
			a.logger.Error("failed to stop message bus", busErr)
		}
	}

	a.cronService = nil
	a.heartbeat = nil
	a.workerPool = nil
	a.metricsSrv = nil
	a.telegram = nil
	a.tools = nil
	a.started = false

	a.logger.Info("application shutdown complete")
	return busErr
}
