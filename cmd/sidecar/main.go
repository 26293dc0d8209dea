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

// Command sidecar runs the multi-tenant agent sidecar.
//
// Usage:
//
//	sidecar serve --config config.yaml
//	sidecar validate --config config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/forgeworks/sidecar/pkg/config"
	"github.com/forgeworks/sidecar/pkg/logger"
	"github.com/forgeworks/sidecar/pkg/verifier/sandbox"
)

// CLI defines the command-line interface.
type CLI struct {
	Version        VersionCmd        `cmd:"" help:"Show version information."`
	Serve          ServeCmd          `cmd:"" help:"Start the sidecar HTTP server."`
	Validate       ValidateCmd       `cmd:"" help:"Validate a configuration file."`
	VerifierWorker VerifierWorkerCmd `cmd:"" name:"verifier-worker" hidden:"" help:"Run one sandbox verifier worker over stdio."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides config."`
	LogFormat string `help:"Log format (text or json). Overrides config."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("sidecar version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s: configuration OK\n", cli.Config)
	return nil
}

// VerifierWorkerCmd is the sandbox worker entrypoint. The serve process
// re-executes its own binary with this command and speaks the framed
// protocol over the worker's stdio.
type VerifierWorkerCmd struct{}

func (c *VerifierWorkerCmd) Run() error {
	return sandbox.WorkerMain(os.Stdin, os.Stdout)
}

// loadConfig loads the config file, or an all-defaults config when no
// file is given, and applies CLI log overrides.
func loadConfig(cli *CLI) (*config.Config, error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format)
	return cfg, nil
}

func main() {
	// A .env file is a convenience for local runs; absence is normal.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sidecar"),
		kong.Description("Multi-tenant agent sidecar."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "sidecar: %v\n", err)
		os.Exit(1)
	}
}
