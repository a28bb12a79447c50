package cli

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"listenlist/internal/auth"
	"listenlist/internal/config"
	"listenlist/internal/db"
	"listenlist/internal/engine"
	"listenlist/internal/logging"
	"listenlist/internal/realtime"
	"listenlist/internal/rest"
)

// app bundles the wired service objects every command starts from.
type app struct {
	cfg     *config.Config
	client  *rest.Client
	storage *auth.FileStorage
	guard   *auth.Guard
}

func newApp(cmd *cobra.Command) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logCfg.Output = f
	}
	logging.Init(logCfg)

	client := rest.NewClient(cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout})
	storage := auth.NewFileStorage(cfg.Auth.CredentialPath)
	guard := auth.NewGuard(storage, client)

	return &app{
		cfg:     cfg,
		client:  client,
		storage: storage,
		guard:   guard,
	}, nil
}

// engine builds the sync engine. Snapshot persistence is optional.
func (a *app) engine(snapshots engine.Snapshots) *engine.Engine {
	return engine.New(engine.Config{
		API:    a.client,
		Tokens: a.guard,
		Realtime: realtime.Config{
			URL:         a.cfg.PushURL(),
			Backoff:     a.cfg.Push.Backoff,
			AuthBackoff: a.cfg.Push.AuthBackoff,
		},
		Snapshots: snapshots,
	})
}

// openSnapshots opens the local snapshot database, creating its
// directory when missing. Callers close the returned DB.
func (a *app) openSnapshots() (*db.DB, *db.SnapshotRepository, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Database.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	database, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return database, db.NewSnapshotRepository(database), nil
}
