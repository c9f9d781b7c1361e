package gocqlclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gocql "github.com/apache/cassandra-gocql-driver/v2"

	"github.com/axonops/cqlmapper/internal/logger"
)

// Config holds the connection configuration for the gocql-backed client.
type Config struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Keyspace       string `json:"keyspace"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Consistency    string `json:"consistency,omitempty"`    // Default consistency level (e.g., "LOCAL_ONE", "QUORUM")
	ConnectTimeout int    `json:"connectTimeout,omitempty"` // Connection timeout in seconds
	RequestTimeout int    `json:"requestTimeout,omitempty"` // Request timeout in seconds
	Debug          bool   `json:"debug,omitempty"`          // Enable debug logging
}

// LoadConfig loads configuration from a JSON file. With no argument it
// checks cqlmapper.json in the working directory, then ~/.cqlmapper.json.
func LoadConfig(customConfigPath ...string) (*Config, error) {
	config := &Config{
		Host: "localhost",
		Port: 9042,
	}

	var configPaths []string
	if len(customConfigPath) > 0 && customConfigPath[0] != "" {
		configPaths = []string{customConfigPath[0]}
	} else {
		configPaths = []string{
			"cqlmapper.json",
			filepath.Join(os.Getenv("HOME"), ".cqlmapper.json"),
		}
	}

	var configData []byte
	var err error
	var foundPath string
	for _, path := range configPaths {
		configData, err = os.ReadFile(path) // #nosec G304 - Config file path is validated
		if err == nil {
			foundPath = path
			break
		}
		logger.DebugfToFile("Config", "No config at %s: %v", path, err)
	}

	if foundPath == "" {
		if len(customConfigPath) > 0 && customConfigPath[0] != "" {
			return nil, fmt.Errorf("config file not found: %s", customConfigPath[0])
		}
		// No file is fine; defaults apply.
		return config, nil
	}

	if err := json.Unmarshal(configData, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", foundPath, err)
	}
	if config.Debug {
		logger.SetDebugEnabled(true)
	}
	logger.DebugfToFile("Config", "Loaded config from %s: host=%s, port=%d, keyspace=%s",
		foundPath, config.Host, config.Port, config.Keyspace)
	return config, nil
}

// ParseConsistency maps a consistency level name to its gocql value.
func ParseConsistency(level string) (gocql.Consistency, error) {
	switch strings.ToUpper(level) {
	case "ANY":
		return gocql.Any, nil
	case "ONE":
		return gocql.One, nil
	case "TWO":
		return gocql.Two, nil
	case "THREE":
		return gocql.Three, nil
	case "QUORUM":
		return gocql.Quorum, nil
	case "ALL":
		return gocql.All, nil
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum, nil
	case "EACH_QUORUM":
		return gocql.EachQuorum, nil
	case "LOCAL_ONE":
		return gocql.LocalOne, nil
	default:
		return gocql.LocalOne, fmt.Errorf("invalid consistency level: %s", level)
	}
}
