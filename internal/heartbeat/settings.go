package heartbeat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/go-processloop/iana"
	"gopkg.in/yaml.v3"
)

// Settings is the reloadable configuration of the heartbeat loop.
type Settings struct {
	// Message is logged on every heartbeat.
	Message string `yaml:"message"`

	// EnterpriseNumber namespaces heartbeat identifiers.
	EnterpriseNumber iana.PrivateEnterpriseNumber `yaml:"enterprise_number"`

	// FailEvery injects a recoverable failure on every nth heartbeat, zero
	// disables.
	FailEvery int `yaml:"fail_every"`
}

// DefaultSettings are used when no settings file is configured.
func DefaultSettings() Settings {
	return Settings{Message: "alive"}
}

// LoadSettings reads YAML settings from path, applied over DefaultSettings.
// Unknown fields are rejected.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == `` {
		return settings, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("heartbeat: read settings: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("heartbeat: parse settings %s: %w", path, err)
	}

	if !settings.EnterpriseNumber.Valid() {
		return Settings{}, fmt.Errorf("heartbeat: parse settings %s: %w", path, iana.ErrInvalidEnterpriseNumber)
	}

	if settings.FailEvery < 0 {
		return Settings{}, fmt.Errorf("heartbeat: parse settings %s: negative fail_every", path)
	}

	return settings, nil
}
