package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"urbanaid/internal/config"
	"urbanaid/internal/db"
	"urbanaid/internal/engine"
	"urbanaid/internal/events"
	"urbanaid/internal/gateway"
	"urbanaid/internal/migrate"
	"urbanaid/internal/session"
)

// App is the wired-up client: config, local database, session manager,
// gateway client and the engine on top of them. One App per command
// invocation; Close releases the database.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Session   *session.Manager
	Gateway   *gateway.Client
	Engine    *engine.Engine
	Events    events.Writer
}

// Open builds an App for the workspace. Config is optional; defaults point
// at a local stub backend. An environment override wins over the file.
func Open(ctx context.Context, workspace, baseURLOverride string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if baseURLOverride != "" {
		cfg.Backend.BaseURL = baseURLOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	client := gateway.New(cfg.Backend.BaseURL)
	client.Timeout = cfg.Timeout()
	sess := &session.Manager{
		Store:  session.NewDBStore(conn),
		Client: client,
	}
	// prime the bearer token from the persisted session, if any
	if _, _, err := sess.Current(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	ev := events.Writer{DB: conn}
	return &App{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Session:   sess,
		Gateway:   client,
		Engine:    engine.New(client, sess, ev),
		Events:    ev,
	}, nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// InitWorkspace writes the default config file unless one already exists.
func InitWorkspace(workspace string) (string, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return "", err
	}
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
