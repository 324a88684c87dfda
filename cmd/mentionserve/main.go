// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the mention detection server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

MentionServe watches a document for trigger characters such as @ or #,
extracts the query typed after them, looks up candidates and turns a picked
candidate into an atomic mention token. It runs as a MessagePack IPC server
for editor integration, or as an interactive CLI for testing rules.

# Usage

Start the server with the default config:

	mentionserve

Use a custom config and catalog, with debug logging:

	mentionserve -config ./mentionserve.toml -catalog ./people.toml -d

Run in CLI mode for interactive testing:

	mentionserve -c

# Item Sources

Candidates come either from a static catalog, a TOML file (or directory of
them) listing items per trigger:

	[[items]]
	trigger = "@"
	value = "alice"
	data = { team = "core" }

or from a SQLite database when search.db_path is set. An empty database is
seeded from the catalog on first start.

# Configuration

	[mentions]
	triggers = ["@", "#"]
	allow_spaces = true
	enclosure = ["[", "]"]
	menu_item_limit = 5
	search_delay_ms = 250

	[menu]
	insert_on_blur = true

Defining [combobox] instead of [menu] selects the detached combobox; defining
both is a configuration error. The file is created with defaults if missing
and reloaded when it changes on disk.

# IPC Protocol

Requests and responses are MessagePack maps over stdin/stdout:

	{"id": "r1", "op": "type", "text": "hi @al"}
	{"id": "r1", "status": "ok", "state": {"status": "ready", "items": [...]}, "doc": {...}, "t": 42}

Search results that land after a response are pushed as events:

	{"event": "change", "session": "...", "state": {...}}

# Command Line Flags

	-config string
	    Path to a custom config file
	-catalog string
	    Catalog file or directory, overrides catalog.path
	-db string
	    SQLite database, overrides search.db_path and enables search mode
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-print-config
	    Print the effective config and exit
	-rebuild-config
	    Rewrite the default config file with defaults and exit
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/mentionserve/internal/cli"
	"github.com/bastiangx/mentionserve/internal/logger"
	"github.com/bastiangx/mentionserve/pkg/config"
	"github.com/bastiangx/mentionserve/pkg/document"
	"github.com/bastiangx/mentionserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.1.0-beta"
	AppName = "mentionserve"
	gh      = "https://github.com/bastiangx/mentionserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler(cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cleanup()
		os.Exit(0)
	}()
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ MentionServe ] Detects @mentions and serves suggestions")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// main only manages the flow; the server and CLI packages hold the logic.
func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a custom config file")
	catalogPath := flag.String("catalog", "", "Catalog file or directory (overrides catalog.path)")
	dbPath := flag.String("db", "", "SQLite database for search mode (overrides search.db_path)")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	rebuildConfig := flag.Bool("rebuild-config", false, "Rewrite the default config file and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	logger.Setup(*debugMode)

	if *rebuildConfig {
		if err := config.RebuildConfigFile(); err != nil {
			log.Fatalf("Failed to rebuild config: %v", err)
		}
		log.Print("Config rebuilt", "path", config.GetActiveConfigPath(""))
		os.Exit(0)
	}

	cfg, loadedFrom, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(loadedFrom))

	if *printConfig {
		if err := cfg.Encode(os.Stdout); err != nil {
			log.Fatalf("Failed to print config: %v", err)
		}
		os.Exit(0)
	}

	ov := overrides{catalog: *catalogPath, db: *dbPath}
	rt := newRuntime(loadedFrom, ov)
	if _, err := rt.load(cfg); err != nil {
		log.Fatalf("Failed to prepare item source: %v", err)
	}
	sigHandler(rt.close)
	defer rt.close()

	doc := document.New("")

	// CLI is mainly for testing rules before wiring an editor.
	if *cliMode {
		log.SetReportTimestamp(false)
		handler := cli.NewInputHandler(doc, os.Stdout)
		eng, err := rt.factory()(doc, handler.Callbacks())
		if err != nil {
			log.Fatalf("Failed to build engine: %v", err)
		}
		handler.SetEngine(eng)
		rt.watch(func() {
			eng, err := rt.factory()(doc, handler.Callbacks())
			if err != nil {
				log.Errorf("Reload rejected: %v", err)
				return
			}
			handler.SetEngine(eng)
		})
		if err := handler.Start(os.Stdin); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv, err := server.New(os.Stdout, rt.factory(), server.Options{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		MaxTextLength:     cfg.Server.MaxTextLength,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	rt.watch(func() {
		if err := srv.Reload(rt.factory()); err != nil {
			log.Errorf("Reload rejected: %v", err)
		}
	})

	showStartupInfo(rt)

	if err := srv.Serve(os.Stdin); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(rt *runtime) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	fmt.Fprintln(os.Stderr, "==============")
	fmt.Fprintln(os.Stderr, " MentionServe ")
	fmt.Fprintln(os.Stderr, "==============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("config: ( %s )", config.GetActiveConfigPath(rt.configPath))
	log.Infof("source: %s", rt.describe())
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "==============")

	log.SetLevel(currentLevel)
}
