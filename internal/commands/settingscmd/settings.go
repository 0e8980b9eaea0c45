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

// Package settingscmd implements the settings CLI: inspect, update, test,
// back up, and restore the stored configuration without the daemon.
package settingscmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/testinsight/testinsight/internal/commands/serve"
	"github.com/testinsight/testinsight/internal/config"
	"github.com/testinsight/testinsight/internal/log"
	"github.com/testinsight/testinsight/internal/probe"
	"github.com/testinsight/testinsight/internal/settings"
)

// NewCommand creates the settings command tree.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage TestInsight settings",
	}

	cmd.AddCommand(
		newShowCommand(),
		newValidateCommand(),
		newStatusCommand(),
		newTestCommand(),
		newBackupCommand(),
		newRestoreCommand(),
		newResetCommand(),
		newSetSecretCommand(),
		newModelsCommand(),
	)
	return cmd
}

// buildService wires a service against the configured data directory. CLI
// commands log quietly unless debugging is turned on.
func buildService() (*settings.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := log.FromEnv()
	var logger *slog.Logger
	if os.Getenv("TESTINSIGHT_DEBUG") != "" {
		logger = log.New(logCfg)
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return serve.BuildService(cfg, logger)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings (secrets redacted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			doc, err := svc.Get()
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the stored settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			verrs, err := svc.ValidateCurrent()
			if err != nil {
				return err
			}
			if verrs == nil {
				cmd.Println("Settings are valid.")
				return nil
			}

			fields := make([]string, 0, len(verrs))
			for field := range verrs {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				for _, msg := range verrs[field] {
					cmd.Printf("  %s: %s\n", field, msg)
				}
			}
			return fmt.Errorf("%d field(s) invalid", len(verrs))
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			status, err := svc.SecretStatus()
			if err != nil {
				return err
			}

			sections := make([]string, 0, len(status))
			for section := range status {
				sections = append(sections, section)
			}
			sort.Strings(sections)
			for _, section := range sections {
				fields := make([]string, 0, len(status[section]))
				for field := range status[section] {
					fields = append(fields, field)
				}
				sort.Strings(fields)
				for _, field := range fields {
					state := "not configured"
					if status[section][field] {
						state = "configured"
					}
					cmd.Printf("  %-20s %s\n", section+"."+field, state)
				}
			}
			return nil
		},
	}
}

func newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "test [jenkins|github|ai|all]",
		Short:     "Test connectivity to a configured service",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"jenkins", "github", "ai", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}

			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			// Testing one service must not probe the other two.
			var results []probe.Result
			if target == "all" {
				results = svc.TestAll(cmd.Context())
			} else {
				results = []probe.Result{svc.TestConnection(cmd.Context(), target, nil)}
			}

			failed := false
			for _, r := range results {
				mark := "ok"
				if !r.Success {
					mark = "FAIL"
					failed = true
				}
				cmd.Printf("  %-8s %-5s %s\n", r.Service, mark, r.Message)
			}

			if failed {
				return fmt.Errorf("one or more connection tests failed")
			}
			return nil
		},
	}
}

func newBackupCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a settings backup",
		Long:  `Export the settings to a backup file. Secrets stay encrypted; the backup restores only on this installation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}

			if output == "" {
				path, err := svc.WriteBackup()
				if err != nil {
					return err
				}
				cmd.Printf("Backup written to %s\n", path)
				return nil
			}

			payload, err := svc.Backup()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, payload, 0600); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			cmd.Printf("Backup written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Backup file path (default: the backups directory)")
	return cmd
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore settings from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}

			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}

			if _, err := svc.Restore(payload); err != nil {
				return err
			}
			cmd.Println("Settings restored.")
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults (a backup is written first)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				cmd.Print("Reset all settings to defaults? Stored credentials will be removed. [y/N] ")
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					cmd.Println("Aborted.")
					return nil
				}
			}

			svc, err := buildService()
			if err != nil {
				return err
			}

			backupPath, _, err := svc.Reset()
			if err != nil {
				return err
			}
			cmd.Printf("Settings reset. Previous settings backed up to %s\n", backupPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// secretUpdaters maps CLI field names to partial updates carrying the value.
var secretUpdaters = map[string]func(string) *settings.Update{
	"jenkins.api_token": func(v string) *settings.Update {
		return &settings.Update{Jenkins: &settings.JenkinsUpdate{APIToken: &v}}
	},
	"github.token": func(v string) *settings.Update {
		return &settings.Update{GitHub: &settings.GitHubUpdate{Token: &v}}
	},
	"ai.api_key": func(v string) *settings.Update {
		return &settings.Update{AI: &settings.AIUpdate{APIKey: &v}}
	},
}

func newSetSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <field>",
		Short: "Set a credential, prompting for the value",
		Long: `Set one of the stored credentials. The value is read from the terminal
without echo, or from stdin when piped. Fields:

  jenkins.api_token
  github.token
  ai.api_key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mkUpdate, ok := secretUpdaters[args[0]]
			if !ok {
				return fmt.Errorf("unknown secret field %q", args[0])
			}

			value, err := readSecret(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("no value supplied")
			}

			svc, err := buildService()
			if err != nil {
				return err
			}
			if _, err := svc.Update(mkUpdate(value)); err != nil {
				return err
			}
			cmd.Printf("%s updated.\n", args[0])
			return nil
		},
	}
}

// readSecret reads a credential without echoing when stdin is a terminal,
// falling back to a plain line read when piped.
func readSecret(cmd *cobra.Command) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		cmd.Print("Value: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List AI models available to the configured key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}

			models, err := svc.ListModels(cmd.Context(), nil)
			if err != nil {
				return err
			}
			for _, m := range models {
				if m.DisplayName != "" {
					cmd.Printf("  %-28s %s\n", m.Name, m.DisplayName)
					continue
				}
				cmd.Printf("  %s\n", m.Name)
			}
			return nil
		},
	}
}
