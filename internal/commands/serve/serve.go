// Copyright 2025 Tom Barlow
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

// Package serve implements the daemon command: it wires the settings
// service, file watcher, and HTTP API together and runs until interrupted.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/testinsight/testinsight/internal/api"
	"github.com/testinsight/testinsight/internal/commands/version"
	"github.com/testinsight/testinsight/internal/config"
	"github.com/testinsight/testinsight/internal/log"
	"github.com/testinsight/testinsight/internal/secrets"
	"github.com/testinsight/testinsight/internal/settings"
)

// keychainService is the OS keychain service name for the encryption key.
const keychainService = "testinsight"

// NewCommand creates the serve command.
func NewCommand(info version.Info) *cobra.Command {
	var (
		listen  string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TestInsight daemon",
		Long:  `Start the HTTP API that the TestInsight UI talks to. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			return run(cmd.Context(), cfg, info)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, info version.Info) error {
	logger := log.New(log.FromEnv())

	svc, err := BuildService(cfg, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
	}, svc, logger)
	server := api.NewServer(cfg.Listen, router, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.WatchSettings {
		watcher, err := settings.NewWatcher(svc, logger)
		if err != nil {
			logger.Warn("settings watcher unavailable", "error", err)
		} else {
			g.Go(func() error {
				err := watcher.Run(ctx)
				if err == context.Canceled {
					return nil
				}
				return err
			})
		}
	}

	logger.Info("daemon started", "version", info.Version, "listen", cfg.Listen)
	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("daemon exited: %w", err)
	}
	return nil
}

// BuildService constructs the settings service from daemon configuration.
// Shared with the settings CLI commands, which operate on the same files.
func BuildService(cfg *config.Config, logger *slog.Logger) (*settings.Service, error) {
	settingsPath, err := cfg.SettingsPath()
	if err != nil {
		return nil, err
	}
	keyPath, err := cfg.KeyPath()
	if err != nil {
		return nil, err
	}
	backupDir, err := cfg.BackupDir()
	if err != nil {
		return nil, err
	}

	var keyOpts []secrets.KeyManagerOption
	if passphrase := os.Getenv(secrets.MasterKeyEnv); passphrase != "" {
		keyOpts = append(keyOpts, secrets.WithPassphrase(passphrase))
	} else if cfg.UseKeychain {
		keyOpts = append(keyOpts, secrets.WithKeychain(keychainService))
	}

	store := settings.NewStore(settingsPath)
	keys := secrets.NewKeyManager(keyPath, keyOpts...)

	return settings.NewService(store, keys, backupDir, logger,
		settings.WithProbeTimeout(cfg.ProbeTimeout)), nil
}
