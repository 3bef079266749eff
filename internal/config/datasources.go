package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AhmedPho/blazer/internal/adapter"
)

// DataSourceEntry is one declared backend in the data sources YAML file.
// Numeric fields follow the original configuration units: timeout and
// slow_threshold in seconds, expires_in in minutes.
type DataSourceEntry struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Adapter        string   `yaml:"adapter"`
	URL            string   `yaml:"url"`
	TimeoutSeconds int      `yaml:"timeout"`
	Schemas        []string `yaml:"schemas"`
	Database       string   `yaml:"database"`
	UseTransaction *bool    `yaml:"use_transaction"`
	MaxOpenConns   int      `yaml:"max_open_conns"`
	MaxIdleConns   int      `yaml:"max_idle_conns"`
	Cache          struct {
		Mode                 string `yaml:"mode"`
		ExpiresInMinutes     int    `yaml:"expires_in"`
		SlowThresholdSeconds int    `yaml:"slow_threshold"`
	} `yaml:"cache"`
}

func (e DataSourceEntry) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e DataSourceEntry) CacheExpiry() time.Duration {
	return time.Duration(e.Cache.ExpiresInMinutes) * time.Minute
}

func (e DataSourceEntry) SlowThreshold() time.Duration {
	return time.Duration(e.Cache.SlowThresholdSeconds) * time.Second
}

type dataSourceFile struct {
	DataSources []DataSourceEntry `yaml:"data_sources"`
}

// LoadDataSources reads and validates the data source declarations.
func LoadDataSources(path string) ([]DataSourceEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data sources file: %w", err)
	}
	return ParseDataSources(raw)
}

func ParseDataSources(raw []byte) ([]DataSourceEntry, error) {
	var file dataSourceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse data sources file: %w", err)
	}
	if len(file.DataSources) == 0 {
		return nil, fmt.Errorf("no data sources declared")
	}

	seen := make(map[string]struct{}, len(file.DataSources))
	for i, entry := range file.DataSources {
		if entry.ID == "" {
			return nil, fmt.Errorf("data source %d: id is required", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate data source id %q", entry.ID)
		}
		seen[entry.ID] = struct{}{}
		if _, err := adapter.Parse(entry.Adapter); err != nil {
			return nil, fmt.Errorf("data source %q: %w", entry.ID, err)
		}
		if entry.TimeoutSeconds < 0 {
			return nil, fmt.Errorf("data source %q: timeout must not be negative", entry.ID)
		}
	}
	return file.DataSources, nil
}
