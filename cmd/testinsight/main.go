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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/testinsight/testinsight/internal/commands/serve"
	"github.com/testinsight/testinsight/internal/commands/settingscmd"
	versioncmd "github.com/testinsight/testinsight/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	info := versioncmd.Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}

	root := &cobra.Command{
		Use:           "testinsight",
		Short:         "AI-assisted test failure triage",
		Long:          `TestInsight analyzes CI test failures using Jenkins, GitHub, and the Gemini API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serve.NewCommand(info),
		settingscmd.NewCommand(),
		versioncmd.NewCommand(info),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
