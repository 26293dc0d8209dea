// Copyright 2026 Forge Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgeworks/sidecar/pkg/agentreg"
	"github.com/forgeworks/sidecar/pkg/auth"
	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/convstore"
	"github.com/forgeworks/sidecar/pkg/database"
	"github.com/forgeworks/sidecar/pkg/fixtures"
	"github.com/forgeworks/sidecar/pkg/hitl"
	"github.com/forgeworks/sidecar/pkg/prefs"
	"github.com/forgeworks/sidecar/pkg/prompts"
	"github.com/forgeworks/sidecar/pkg/ratelimit"
	"github.com/forgeworks/sidecar/pkg/react"
	"github.com/forgeworks/sidecar/pkg/server"
	"github.com/forgeworks/sidecar/pkg/toolreg"
	"github.com/forgeworks/sidecar/pkg/verifier"
	"github.com/forgeworks/sidecar/pkg/verifier/sandbox"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on. Overrides config."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Sidecar.Port = c.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := database.NewPool()
	defer func() { _ = pool.Close() }()

	db, dialect, err := pool.Get(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open registry database: %w", err)
	}

	agents, err := agentreg.NewStore(db, dialect)
	if err != nil {
		return err
	}
	if err := agents.Seed(ctx, cfg.Agents); err != nil {
		return fmt.Errorf("failed to seed agents: %w", err)
	}
	prefStore, err := prefs.NewStore(db, dialect)
	if err != nil {
		return err
	}
	promptStore, err := prompts.NewStore(db, dialect)
	if err != nil {
		return err
	}
	toolStore, err := toolreg.NewStore(db, dialect)
	if err != nil {
		return err
	}
	verStore, err := verifier.NewStore(db, dialect)
	if err != nil {
		return err
	}
	fixStore, err := fixtures.NewStore(db, dialect)
	if err != nil {
		return err
	}

	conv, err := convstore.New(&cfg.Conversation, &cfg.Database, pool)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer func() { _ = conv.Close() }()

	engine := hitl.NewEngine(hitl.NewStore(&cfg.Conversation, &cfg.Database, pool), 0)
	defer func() { _ = engine.Close() }()

	var runner verifier.CustomRunner
	if cfg.Verification.Sandbox {
		sandboxPool, err := sandbox.NewPool(cfg.Verification, sandbox.DefaultWorkerCommand)
		if err != nil {
			return fmt.Errorf("failed to start verifier sandbox: %w", err)
		}
		defer func() { _ = sandboxPool.Close() }()
		runner = sandboxPool
	}

	limiter, err := ratelimit.NewFromConfig(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	authn, err := auth.New(&cfg.Auth)
	if err != nil {
		return err
	}

	overlay := config.NewOverlay(cfg)
	srv := server.New(server.Deps{
		Overlay:   overlay,
		Auth:      authn,
		Admin:     auth.NewAdmin(cfg.AdminKey),
		Limiter:   limiter,
		Conv:      conv,
		Agents:    agents,
		Prefs:     prefStore,
		Prompts:   promptStore,
		Tools:     toolStore,
		Verifiers: verStore,
		Fixtures:  fixStore,
		Resolver:  prefs.NewResolver(overlay.Snapshot, agents, prefStore, promptStore, toolStore),
		Driver:    react.NewDriver(conv, engine, toolreg.NewDispatcher()),
		Engine:    engine,
		Runner:    runner,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Sidecar.Port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sidecar listening", "port", cfg.Sidecar.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
