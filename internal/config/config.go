package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the on-disk settings of go2cast.
type Config struct {
	CommandTimeoutSec  int    `json:"commandTimeoutSec"`
	PollIntervalMS     int    `json:"pollIntervalMs"`
	ConnectionRetries  int    `json:"connectionRetries"`
	DiscoveryTimeoutMS int    `json:"discoveryTimeoutMs"`
	ReceiverAppID      string `json:"receiverAppId,omitempty"`
	LogFile            string `json:"logFile,omitempty"`
	Debug              bool   `json:"debug"`
}

var configDir = os.UserConfigDir

// Default returns the settings written on first use.
func Default() *Config {
	return &Config{
		CommandTimeoutSec:  30,
		PollIntervalMS:     1000,
		ConnectionRetries:  5,
		DiscoveryTimeoutMS: 750,
	}
}

func GetAppConfig() (*Config, error) {
	path, err := appPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w", err)
	}

	cfgfile, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return nil, fmt.Errorf("GetAppConfig: failed to create default path due to error %w", err)
			}

			conf := Default()
			if err := conf.SaveAppConfig(); err != nil {
				return nil, fmt.Errorf("GetAppConfig: failed to create default config due to error %w", err)
			}

			return conf, nil
		}

		return nil, fmt.Errorf("GetAppConfig: failed to open config due to error %w", err)
	}
	defer cfgfile.Close()

	conf := Default()
	if err := json.NewDecoder(cfgfile).Decode(conf); err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to decode config due to error %w", err)
	}

	return conf, nil
}

func (c *Config) SaveAppConfig() error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to marshal json due to error %w", err)
	}

	path, err := appPath()
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to access config path due to error %w", err)
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("SaveAppConfig: failed save config due to error %w", err)
	}

	return nil
}

// CommandTimeout bounds each call to the cast device.
func (c *Config) CommandTimeout() time.Duration {
	return positive(time.Duration(c.CommandTimeoutSec)*time.Second, 30*time.Second)
}

// PollInterval paces receiver status polling.
func (c *Config) PollInterval() time.Duration {
	return positive(time.Duration(c.PollIntervalMS)*time.Millisecond, time.Second)
}

// DiscoveryTimeout bounds an mDNS query on one interface.
func (c *Config) DiscoveryTimeout() time.Duration {
	return positive(time.Duration(c.DiscoveryTimeoutMS)*time.Millisecond, 750*time.Millisecond)
}

func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func appPath() (string, error) {
	oscfg, err := configDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error %w", err)
	}

	return filepath.Join(oscfg, "go2cast", "settings.json"), nil
}
