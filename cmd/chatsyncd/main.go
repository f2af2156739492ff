package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"chatsync/internal/config"
	"chatsync/internal/daemon"
)

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "data directory for the database, lock and logs")
	configPath := flag.String("config", "", "config file path (default <data-dir>/config.toml)")
	userID := flag.String("user", "", "current user id (overrides config)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = filepath.Join(*dataDir, "config.toml")
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default(*dataDir)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *userID != "" {
		cfg.CurrentUserID = *userID
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatsync"
	}
	return filepath.Join(home, ".chatsync")
}
