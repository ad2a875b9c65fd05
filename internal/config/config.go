// Package config loads client configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/client"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/socket"
)

// Config is the root of a configuration file.
//
//	name: my-client
//	protocol:
//	  id: 0x4CE
//	  version: {major: 1, minor: 0}
//	check_packets: true
//	request_timeout: 30s
//	connections:
//	  - name: main
//	    address: 127.0.0.1:7000
//	    protocol: tcp
//	    max_sleep: 60s
type Config struct {
	Name           string        `yaml:"name"`
	Protocol       Protocol      `yaml:"protocol"`
	CheckPackets   bool          `yaml:"check_packets"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Connections    []Connection  `yaml:"connections"`
}

type Protocol struct {
	ID      uint32  `yaml:"id"`
	Version Version `yaml:"version"`
}

type Version struct {
	Major uint16 `yaml:"major"`
	Minor uint16 `yaml:"minor"`
}

type Connection struct {
	Name              string           `yaml:"name"`
	Address           string           `yaml:"address"`
	Protocol          cengine.Protocol `yaml:"protocol"`
	MaxSleep          time.Duration    `yaml:"max_sleep"`
	ReceiveBufferSize int              `yaml:"receive_buffer_size"`
	RateLimit         *RateLimit       `yaml:"rate_limit"`
	Auth              *Auth            `yaml:"auth"`
}

type RateLimit struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
	Enabled           bool    `yaml:"enabled"`
}

type Auth struct {
	Data  string `yaml:"data"`
	Admin bool   `yaml:"admin"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = client.DefaultClientName
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = client.DefaultRequestTimeout
	}
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Name == "" {
			conn.Name = fmt.Sprintf("%s-%d", client.DefaultConnectionName, i)
		}
		if conn.Protocol == "" {
			conn.Protocol = cengine.ProtocolTCP
		}
		if conn.MaxSleep <= 0 {
			conn.MaxSleep = client.DefaultMaxSleep
		}
		if conn.ReceiveBufferSize <= 0 {
			conn.ReceiveBufferSize = client.DefaultReceiveBufferSize
		}
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for i, conn := range c.Connections {
		if conn.Address == "" {
			errs = append(errs, fmt.Errorf("connections[%d]: address is required", i))
		}
		if !conn.Protocol.Valid() {
			errs = append(errs, fmt.Errorf("connections[%d]: %w %q", i, cengine.ErrUnknownProtocol, conn.Protocol))
		}
		if seen[conn.Name] {
			errs = append(errs, fmt.Errorf("connections[%d]: %w: %q", i, cengine.ErrConnectionNameTaken, conn.Name))
		}
		seen[conn.Name] = true

		if rl := conn.RateLimit; rl != nil && rl.Enabled && (rl.MessagesPerSecond <= 0 || rl.Burst <= 0) {
			errs = append(errs, fmt.Errorf("connections[%d]: rate_limit needs a positive messages_per_second and burst", i))
		}
	}

	return errors.Join(errs...)
}

// Identity returns the protocol identity the client stamps on packets.
func (c *Config) Identity() protocol.Identity {
	return protocol.Identity{
		ID:      c.Protocol.ID,
		Version: protocol.ProtocolVersion{Major: c.Protocol.Version.Major, Minor: c.Protocol.Version.Minor},
	}
}

// ClientConfig converts the configuration into client settings.
func (c *Config) ClientConfig(logger *zap.Logger) client.Config {
	return client.Config{
		Name:           c.Name,
		Identity:       c.Identity(),
		CheckPackets:   c.CheckPackets,
		RequestTimeout: c.RequestTimeout,
		Logger:         logger,
	}
}

// ConnectionConfig converts one connection entry into connection settings.
func (c Connection) ConnectionConfig() client.ConnectionConfig {
	cfg := client.ConnectionConfig{
		Name:              c.Name,
		Address:           c.Address,
		Protocol:          c.Protocol,
		MaxSleep:          c.MaxSleep,
		ReceiveBufferSize: c.ReceiveBufferSize,
	}
	if c.RateLimit != nil {
		cfg.RateLimit = &socket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(c.RateLimit.MessagesPerSecond),
			Burst:             c.RateLimit.Burst,
			Enabled:           c.RateLimit.Enabled,
		}
	}
	if c.Auth != nil {
		cfg.Auth = &client.AuthData{Data: []byte(c.Auth.Data), Admin: c.Auth.Admin}
	}
	return cfg
}
