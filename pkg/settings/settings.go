// Package settings loads the process-wide service settings file once at startup.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/morezero/api-dispatcher/pkg/client"
)

const (
	logPrefix = "settings:loader"

	// DefaultFileName is the settings file looked up in the working directory.
	DefaultFileName = ".janiscommercerc.json"

	keyClientIdentifiers = "api.clientIdentifiers"
)

// Settings holds the parsed settings. It is read-only after Load.
type Settings struct {
	// Source is the file the settings were read from, empty for defaults.
	Source            string
	ClientIdentifiers []client.Identifier

	v *viper.Viper
}

// Get returns a raw settings value by dotted key, or nil.
func (s *Settings) Get(key string) any {
	if s.v == nil {
		return nil
	}
	return s.v.Get(key)
}

// Load reads settings from the first readable path: any paths passed in, then
// the defaults. Unreadable or malformed files are skipped with a warning. When
// no file is found empty settings are returned.
func Load(paths ...string) (*Settings, error) {
	all := make([]string, 0, len(paths)+2)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	all = append(all, DefaultFileName, "config/"+DefaultFileName)

	for _, p := range all {
		if _, err := os.Stat(p); err != nil {
			continue
		}

		v := viper.New()
		v.SetConfigFile(p)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse settings file %s: %v", logPrefix, p, err))
			continue
		}

		s, err := fromViper(v)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid settings in %s: %w", logPrefix, p, err)
		}
		s.Source = p

		slog.Info(fmt.Sprintf("%s - Loaded settings from %s (%d client identifiers)", logPrefix, p, len(s.ClientIdentifiers)))
		return s, nil
	}

	slog.Info(fmt.Sprintf("%s - No settings file found, using defaults", logPrefix))
	return &Settings{}, nil
}

func fromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{v: v}

	// A single identifier object is accepted in place of a list.
	switch v.Get(keyClientIdentifiers).(type) {
	case nil:
	case []any:
		if err := v.UnmarshalKey(keyClientIdentifiers, &s.ClientIdentifiers); err != nil {
			return nil, err
		}
	case map[string]any:
		var one client.Identifier
		if err := v.UnmarshalKey(keyClientIdentifiers, &one); err != nil {
			return nil, err
		}
		s.ClientIdentifiers = []client.Identifier{one}
	default:
		return nil, errors.New("api.clientIdentifiers must be an object or a list of objects")
	}
	return s, nil
}
