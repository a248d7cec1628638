// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// pvechat is a terminal chat client for the PVE AI proxy: describe
// what you want in plain language and watch the proxy drive your
// Proxmox node, with live shell output, cancellation, and cleanup of
// half-provisioned resources.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/pvechat-tui/internal/config"
	"github.com/jeranaias/pvechat-tui/internal/kvstore"
	"github.com/jeranaias/pvechat-tui/internal/proxy"
	"github.com/jeranaias/pvechat-tui/internal/session"
	"github.com/jeranaias/pvechat-tui/internal/shell"
	"github.com/jeranaias/pvechat-tui/internal/turn"
	"github.com/jeranaias/pvechat-tui/internal/ui/chat"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pvechat:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default ~/.pvechat/config.toml)")
	ephemeral := flag.Bool("ephemeral", false, "keep sessions and settings in memory only")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("pvechat", Version)
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("pvechat is interactive and needs a terminal")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Persistence: SQLite by default, memory with -ephemeral.
	var kv kvstore.Store
	if *ephemeral {
		kv = kvstore.NewMem()
	} else {
		dbPath, err := cfg.StoreDBPath()
		if err != nil {
			return err
		}
		db, err := kvstore.OpenSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()
		kv = db
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	settings, err := session.NewSettings(kv, cfg.Namespace, filepath.Join(dir, "master.key"))
	if err != nil {
		return err
	}
	store := session.NewStore(kv, cfg.Namespace)

	client := proxy.NewClient(&proxy.ClientConfig{
		BaseURL:     cfg.ProxyURL,
		InsecureTLS: cfg.InsecureTLS,
	})

	dispatcher := chat.NewDispatcher()
	shells := shell.NewAggregator(dispatcher.ShellChanged)
	controller := turn.NewController(turn.Config{
		Client:       client,
		Store:        store,
		Settings:     settings,
		Shells:       shells,
		Sink:         dispatcher,
		DefaultModel: cfg.DefaultModel,
	})

	model := chat.New(chat.Options{
		Controller: controller,
		Store:      store,
		Settings:   settings,
		Shells:     shells,
		Config:     cfg,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	dispatcher.Attach(program)

	// Hot-reload the config file while running.
	if *configPath == "" {
		if path, err := config.Path(); err == nil {
			if watcher, err := config.NewWatcher(path, dispatcher.ConfigReloaded); err == nil {
				if err := watcher.Watch(); err != nil {
					watcher.Close()
				} else {
					defer watcher.Close()
				}
			}
		}
	}

	_, err = program.Run()
	return err
}
