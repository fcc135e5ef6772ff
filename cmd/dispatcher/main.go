// Package main is the entrypoint for the api-dispatcher.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/api-dispatcher/internal/config"
	"github.com/morezero/api-dispatcher/internal/handlers"
	"github.com/morezero/api-dispatcher/internal/server"
	"github.com/morezero/api-dispatcher/pkg/db"
)

const usage = `Usage: dispatcher [command]
       dispatcher serve              Start the dispatcher (NATS subscription, HTTP health and metrics).
       dispatcher migrate up         Apply pending database migrations.
       dispatcher migrate down       Roll back the last applied migration (runs its .down.sql).
       dispatcher migrate status     List migrations and when each was applied.
       dispatcher ensure-db [name]   Create database if missing (default name: api_dispatcher_test). Uses DATABASE_URL host/user.
       dispatcher clear [client]     Delete stored audit logs, all or one client's; schema and clients are preserved.
       dispatcher routes             Print the handler paths the dispatcher resolves.

Environment: COMMS_URL, DISPATCH_SUBJECT, AUDIT_LOG_SINK (none, comms, postgres), DATABASE_URL (migrate, clear,
postgres sink), MIGRATION_PATH, REDIS_ADDR, SETTINGS_FILE, MS_PATH, API_ROOT, HTTP_PORT. See README.
`

const defaultTestDatabase = "api_dispatcher_test"

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("dispatcher migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("dispatcher migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("dispatcher migrate status: %v", err)
			}
		case "down":
			if err := withPool(runMigrateDown); err != nil {
				log.Fatalf("dispatcher migrate down: %v", err)
			}
		default:
			log.Fatalf("dispatcher migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		clientCode := ""
		if len(args) > 1 {
			clientCode = args[1]
		}
		if err := withPool(clearFor(clientCode)); err != nil {
			log.Fatalf("dispatcher clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := defaultTestDatabase
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("dispatcher ensure-db: %v", err)
		}
		return
	case "routes":
		if err := runRoutes(os.Stdout); err != nil {
			log.Fatalf("dispatcher routes: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

// withPool loads the config, opens the database and runs fn with the pool and
// the migration path.
func withPool(fn func(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, cfg.MigrationPath)
}

func runMigrateUp(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	migrations, err := db.LoadMigrations(migrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	n, err := db.MigrateUp(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Applied %d migration(s).\n", n)
	return nil
}

func runMigrateDown(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	migrations, err := db.LoadMigrations(migrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := db.MigrateDown(ctx, pool, migrations)
	if err != nil {
		return err
	}
	if m == nil {
		fmt.Println("No applied migration to roll back.")
		return nil
	}
	fmt.Printf("Rolled back %s_%s.\n", m.Version, m.Name)
	return nil
}

func runMigrateStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	migrations, err := db.LoadMigrations(migrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	states, err := db.MigrationStates(ctx, pool, migrations)
	if err != nil {
		return err
	}
	writeMigrationStates(os.Stdout, states)
	return nil
}

// writeMigrationStates prints one line per migration: version, name and the
// time it was applied or "pending".
func writeMigrationStates(w io.Writer, states []db.MigrationState) {
	for _, st := range states {
		applied := "pending"
		if st.AppliedAt != nil {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s_%s\t%s\n", st.Version, st.Name, applied)
	}
}

// clearFor returns a withPool step clearing the audit logs of clientCode, or
// every log when it is empty.
func clearFor(clientCode string) func(context.Context, *pgxpool.Pool, string) error {
	return func(ctx context.Context, pool *pgxpool.Pool, _ string) error {
		n, err := db.ClearAuditLogs(ctx, pool, clientCode)
		if err != nil {
			return fmt.Errorf("clear audit logs: %w", err)
		}
		if n < 0 {
			fmt.Println("All audit logs cleared.")
		} else {
			fmt.Printf("Removed %d audit log(s) of client %q.\n", n, clientCode)
		}
		return nil
	}
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := databaseURLFor(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), targetURL)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", dbName)
	} else {
		fmt.Printf("Database %q already exists.\n", dbName)
	}
	return nil
}

// databaseURLFor replaces the database name of databaseURL, keeping the query (e.g. sslmode).
func databaseURLFor(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// runRoutes prints every handler path of a dispatcher configured from the
// environment. Database-backed handlers are listed when DATABASE_URL is set.
func runRoutes(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	deps := handlers.Deps{}
	if cfg.DatabaseURL != "" {
		// Handlers are only listed here, never run, so no pool is opened.
		repo := db.NewRepository(nil)
		deps.Logs = repo
		deps.Clients = repo
	}
	server.SetupLogging("warn")
	f := server.NewFetcher(cfg, deps)
	for _, r := range f.Routes() {
		fmt.Fprintln(w, r)
	}
	return nil
}
