package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig is the process configuration of lowapp-node
type NodeConfig struct {
	Node struct {
		Name       string `yaml:"name"`
		RecordPath string `yaml:"record_path"` // configuration record (AT&W target)
	} `yaml:"node"`

	Medium struct {
		UplinkURL   string `yaml:"uplink_url"`
		DownlinkURL string `yaml:"downlink_url"`
		RSSI        int16  `yaml:"rssi"`
		SNR         int8   `yaml:"snr"`
	} `yaml:"medium"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	API struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr"`
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"api"`

	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"` // prefix, defaults to lowapp.<group>.<device>
	} `yaml:"nats"`

	Console struct {
		Stdio     bool   `yaml:"stdio"`
		RemoteURL string `yaml:"remote_url"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"console"`
}

// LoadNode reads the process configuration, applies LOWAPP_* environment
// overrides, fills defaults and validates the result
func LoadNode(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *NodeConfig) applyEnvOverrides() {
	if v := os.Getenv("LOWAPP_RECORD_PATH"); v != "" {
		c.Node.RecordPath = v
	}
	if v := os.Getenv("LOWAPP_UPLINK_URL"); v != "" {
		c.Medium.UplinkURL = v
	}
	if v := os.Getenv("LOWAPP_DOWNLINK_URL"); v != "" {
		c.Medium.DownlinkURL = v
	}
	if v := os.Getenv("LOWAPP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LOWAPP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOWAPP_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("LOWAPP_JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := os.Getenv("LOWAPP_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *NodeConfig) setDefaults() {
	if c.Node.Name == "" {
		c.Node.Name = "lowapp"
	}
	if c.Node.RecordPath == "" {
		c.Node.RecordPath = "/var/lib/lowapp/record.yaml"
	}
	if c.Medium.UplinkURL == "" {
		c.Medium.UplinkURL = "tcp://127.0.0.1:7701"
	}
	if c.Medium.DownlinkURL == "" {
		c.Medium.DownlinkURL = "tcp://127.0.0.1:7702"
	}
	if c.Medium.RSSI == 0 {
		c.Medium.RSSI = -60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8080"
	}
	if c.API.TokenTTL == 0 {
		c.API.TokenTTL = 24 * time.Hour
	}
}

func (c *NodeConfig) validate() error {
	if c.API.Enabled && c.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required when the API is enabled")
	}
	if c.API.Enabled && len(c.API.JWTSecret) < 16 {
		return fmt.Errorf("api.jwt_secret must be at least 16 characters")
	}
	return nil
}
