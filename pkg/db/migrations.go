package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one versioned schema change. Down is empty when the change has
// no rollback script.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// migrationFileName matches 0001_name.up.sql, 0001_name.down.sql and the
// up-only form 0001_name.sql.
var migrationFileName = regexp.MustCompile(`^(\d+)_(.+?)(?:\.(up|down))?\.sql$`)

// LoadMigrations reads the migration scripts in dir and pairs them by version,
// sorted ascending. Files not ending in .sql are ignored.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	byVersion := map[string]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFileName.FindStringSubmatch(e.Name())
		if m == nil {
			if filepath.Ext(e.Name()) == ".sql" {
				return nil, fmt.Errorf("%s - %s is not named NNNN_name[.up|.down].sql", migrationsLogPrefix, e.Name())
			}
			continue
		}
		version, name, direction := m[1], m[2], m[3]

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, e.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: name}
			byVersion[version] = mig
		} else if mig.Name != name {
			return nil, fmt.Errorf("%s - version %s is used by %s and %s", migrationsLogPrefix, version, mig.Name, name)
		}

		switch direction {
		case "down":
			mig.Down = string(data)
		default:
			if mig.Up != "" {
				return nil, fmt.Errorf("%s - version %s has more than one up script", migrationsLogPrefix, version)
			}
			mig.Up = string(data)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("%s - version %s has a down script but no up script", migrationsLogPrefix, mig.Version)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// pending returns the migrations not in applied, in order.
func pending(migrations []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// latestApplied returns the highest applied migration, or nil when none of
// migrations is applied.
func latestApplied(migrations []Migration, applied map[string]bool) *Migration {
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Version] {
			return &migrations[i]
		}
	}
	return nil
}
