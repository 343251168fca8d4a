package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config tunes the segment/index pair. It grows the teacher's bare
// MaxStoreBytes/MaxIndexBytes/InitialOffset struct with time index
// sizing while keeping the original field names and shape. The search
// engine's warm-region size is not configurable here; it is the
// warmBytes constant in region.go.
type Config struct {
	Segment struct {
		// MaxStoreBytes is the size at which a segment's store file is
		// considered full and the log must roll.
		MaxStoreBytes uint64 `json:"max_store_bytes"`
		// MaxIndexBytes is the pre-allocated size of a segment's
		// offset index file (spec.md §3 maxIndexSize).
		MaxIndexBytes uint64 `json:"max_index_bytes"`
		// MaxTimeIndexBytes is the pre-allocated size of a segment's
		// time index file.
		MaxTimeIndexBytes uint64 `json:"max_time_index_bytes"`
		// InitialOffset is the base offset of the first segment
		// created by a fresh log.
		InitialOffset uint64 `json:"initial_offset"`
	} `json:"segment"`
}

// DefaultConfig returns the configuration used when no tuning file is
// present: 1 MiB for the store and for each index file, and an initial
// offset of 0.
func DefaultConfig() Config {
	var cfg Config
	cfg.Segment.MaxStoreBytes = 1024 * 1024
	cfg.Segment.MaxIndexBytes = 1024 * 1024
	cfg.Segment.MaxTimeIndexBytes = 1024 * 1024
	cfg.Segment.InitialOffset = 0
	return cfg
}

// ConfigFileName is the default tuning-file name looked up in a
// segment directory, analogous to a project-local dotfile.
const ConfigFileName = "segment.hujson"

// LoadConfig loads configuration with the following precedence
// (highest wins), following calvinalkan-agent-task/config.go's
// layered DefaultConfig -> global -> project -> explicit path model:
//  1. DefaultConfig()
//  2. global config at $XDG_CONFIG_HOME/kafka3.3/segment.hujson
//  3. project config at filepath.Join(dir, ConfigFileName)
//  4. explicit configPath, if non-empty
func LoadConfig(dir, configPath string, env []string) (Config, error) {
	cfg := DefaultConfig()

	if globalPath := globalConfigPath(env); globalPath != "" {
		merged, err := mergeFromFile(cfg, globalPath, true)
		if err != nil {
			return Config{}, err
		}
		cfg = merged
	}

	merged, err := mergeFromFile(cfg, filepath.Join(dir, ConfigFileName), true)
	if err != nil {
		return Config{}, err
	}
	cfg = merged

	if configPath != "" {
		merged, err := mergeFromFile(cfg, configPath, false)
		if err != nil {
			return Config{}, err
		}
		cfg = merged
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "kafka3.3", ConfigFileName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kafka3.3", ConfigFileName)
}

// mergeFromFile reads a hujson (JSON with comments/trailing commas)
// config file and overlays its non-zero fields onto base. A missing
// file is not an error when optional is true.
func mergeFromFile(base Config, path string, optional bool) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && optional {
			return base, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	var overlay Config
	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	return mergeConfig(base, overlay), nil
}

// mergeConfig overlays any non-zero field of overlay onto base.
func mergeConfig(base, overlay Config) Config {
	if overlay.Segment.MaxStoreBytes != 0 {
		base.Segment.MaxStoreBytes = overlay.Segment.MaxStoreBytes
	}
	if overlay.Segment.MaxIndexBytes != 0 {
		base.Segment.MaxIndexBytes = overlay.Segment.MaxIndexBytes
	}
	if overlay.Segment.MaxTimeIndexBytes != 0 {
		base.Segment.MaxTimeIndexBytes = overlay.Segment.MaxTimeIndexBytes
	}
	if overlay.Segment.InitialOffset != 0 {
		base.Segment.InitialOffset = overlay.Segment.InitialOffset
	}
	return base
}

func validateConfig(cfg Config) error {
	if cfg.Segment.MaxIndexBytes < offsetEntrySize {
		return fmt.Errorf("segment.max_index_bytes must be at least %d bytes", offsetEntrySize)
	}
	if cfg.Segment.MaxTimeIndexBytes < timeEntrySize {
		return fmt.Errorf("segment.max_time_index_bytes must be at least %d bytes", timeEntrySize)
	}
	if cfg.Segment.MaxStoreBytes == 0 {
		return fmt.Errorf("segment.max_store_bytes must be greater than zero")
	}
	return nil
}
