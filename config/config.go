// Package config loads and saves the client settings file.
//
// Settings are layered. Built-in defaults come first; the JSON file in the
// data directory is decoded over them, so a file only needs the keys it
// changes. TOXCLIENT_* environment variables (optionally from a .env file,
// see LoadDotEnv) override both. The result is validated before use.
//
// Environment names follow the field path with words split by underscores:
// TOXCLIENT_LAST_USED_PROFILE, TOXCLIENT_NETWORK_PROXY_PORT,
// TOXCLIENT_FILE_TRANSFERS_REJECT_FILES and so on.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/limits"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOXCLIENT"

// FileName is the settings file name inside the data directory.
const FileName = "config.json"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Proxy settings.
type Proxy struct {
	Enabled bool   `json:"enabled" split_words:"true"`
	Type    string `json:"type" split_words:"true" validate:"oneof=socks5 http"`
	Address string `json:"address" split_words:"true" validate:"required_if=Enabled true"`
	Port    int    `json:"port" split_words:"true" validate:"min=0,max=65535"`
}

// Network settings passed to the engine.
type Network struct {
	UDP   bool  `json:"udp" split_words:"true"`
	IPv6  bool  `json:"ipv6" envconfig:"IPV6"`
	Proxy Proxy `json:"proxy" split_words:"true"`
}

// Bootstrap names the DHT node contacted after startup.
type Bootstrap struct {
	Host      string `json:"host" split_words:"true" validate:"required"`
	Port      int    `json:"port" split_words:"true" validate:"min=1,max=65535"`
	PublicKey string `json:"publicKey" split_words:"true" validate:"len=64,hexadecimal"`
}

// FileTransfers holds the incoming transfer policy.
type FileTransfers struct {
	RejectFiles   bool  `json:"rejectFiles" split_words:"true"`
	RejectAvatars bool  `json:"rejectAvatars" split_words:"true"`
	MaxAvatarSize int64 `json:"maxAvatarSize" split_words:"true" validate:"min=0"`
	// StallTimeout is how many seconds a running transfer may go without
	// moving data before it is cancelled. Zero, the default, disables the
	// check and transfers wait until cancelled or shut down.
	StallTimeout int `json:"stallTimeout" split_words:"true" validate:"min=0"`
}

// Bridge configures the local presentation bridge. An empty Listen disables it.
type Bridge struct {
	Listen string `json:"listen" split_words:"true" validate:"omitempty,hostname_port"`
}

// Config is the complete settings document.
type Config struct {
	LastUsedProfile string        `json:"lastUsedProfile" split_words:"true"`
	DataDir         string        `json:"dataDir" split_words:"true" validate:"required"`
	DownloadDir     string        `json:"downloadDir" split_words:"true" validate:"required"`
	Network         Network       `json:"network" split_words:"true"`
	Bootstrap       Bootstrap     `json:"bootstrap" split_words:"true"`
	FileTransfers   FileTransfers `json:"fileTransfers" split_words:"true"`
	Bridge          Bridge        `json:"bridge" split_words:"true"`
	UseSimulation   bool          `json:"useSimulation" split_words:"true"`

	path string
}

// DefaultDataDir is the per-user configuration directory for the client.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "toxclient-data"
	}
	return filepath.Join(dir, "toxclient")
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads")
}

// Default returns the built-in settings.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:     dataDir,
		DownloadDir: defaultDownloadDir(),
		Network: Network{
			UDP:  true,
			IPv6: true,
			Proxy: Proxy{
				Type:    "socks5",
				Address: "127.0.0.1",
				Port:    9050,
			},
		},
		Bootstrap: Bootstrap{
			Host:      "85.172.30.117",
			Port:      33445,
			PublicKey: "8E7D0B859922EF569298B4D261A8CCB5FEA14FB91ED412A7603A585A25698832",
		},
		FileTransfers: FileTransfers{
			MaxAvatarSize: limits.MaxAvatarSize,
		},
		Bridge: Bridge{
			Listen: "127.0.0.1:33450",
		},
		path: filepath.Join(dataDir, FileName),
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logrus.WithFields(logrus.Fields{
					"function": "LoadDotEnv",
					"file":     f,
				}).Debug("No .env file found, using environment variables")
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the settings file at path over the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error; the defaults are used and the file is written on the next Save.
// An empty path means config.json in the data directory, honouring
// TOXCLIENT_DATA_DIR.
// An empty path selects config.json in the default data directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = cfg.path
		if dir := os.Getenv(EnvPrefix + "_DATA_DIR"); dir != "" {
			path = filepath.Join(dir, FileName)
		}
	}
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     path,
		}).Info("No config file found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Load",
		"path":           path,
		"data_dir":       cfg.DataDir,
		"last_profile":   cfg.LastUsedProfile,
		"use_simulation": cfg.UseSimulation,
	}).Info("Loaded config")

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Path returns where Save writes the file.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes the file.
func (c *Config) SetPath(path string) {
	c.path = path
}

// Save writes the settings as indented JSON, replacing the file atomically.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no path")
	}
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := WriteFileAtomic(c.path, data, 0o600); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Save",
		"path":     c.path,
	}).Debug("Config saved")
	return nil
}

// EngineOptions converts the network settings for engine construction.
func (c *Config) EngineOptions() engine.Options {
	// LAN discovery runs over UDP.
	opts := engine.Options{
		UDPEnabled:     c.Network.UDP,
		IPv6Enabled:    c.Network.IPv6,
		LocalDiscovery: c.Network.UDP,
	}
	if c.Network.Proxy.Enabled {
		opts.Proxy = engine.ProxyOptions{
			Type: engine.ProxyTypeSOCKS5,
			Host: c.Network.Proxy.Address,
			Port: uint16(c.Network.Proxy.Port),
		}
		if c.Network.Proxy.Type == "http" {
			opts.Proxy.Type = engine.ProxyTypeHTTP
		}
	}
	return opts
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
