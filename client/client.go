package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ermiry/cengine/internal/client"
	"github.com/ermiry/cengine/internal/config"
	"github.com/ermiry/cengine/internal/socket"
)

type Client = client.Client
type Connection = client.Connection
type Config = client.Config
type ConnectionConfig = client.ConnectionConfig
type AuthData = client.AuthData
type Task = client.Task
type RateLimitConfig = socket.RateLimitConfig
type FileConfig = config.Config

// New creates a client with no connections.
//
// Connections are added with CreateConnection and brought up with one of
// the Connect variants. A nil cfg.Logger logs nothing.
//
// Example:
//
//	c := client.New(client.Config{
//	    Name:     "game-client",
//	    Identity: cengine.Identity{ID: 0x4CE, Version: cengine.ProtocolVersion{Major: 1}},
//	    Logger:   logger,
//	})
//	conn, err := c.CreateConnection(client.ConnectionConfig{
//	    Name:     "main",
//	    Address:  "127.0.0.1:7000",
//	    Protocol: cengine.ProtocolTCP,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := c.ConnectAndStart(ctx, conn); err != nil {
//	    return err
//	}
func New(cfg Config) *Client {
	return client.New(cfg)
}

// NewConnection creates a connection that is not yet registered to a client.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	return client.NewConnection(cfg)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	return config.Load(path)
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(data []byte) (*FileConfig, error) {
	return config.Parse(data)
}

// NewFromConfig creates a client and every connection listed in cfg. The
// connections are created but not connected. A nil logger logs to the
// console at development level.
func NewFromConfig(cfg *FileConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	c := client.New(cfg.ClientConfig(logger))
	for _, cc := range cfg.Connections {
		if _, err := c.CreateConnection(cc.ConnectionConfig()); err != nil {
			c.Teardown()
			return nil, fmt.Errorf("connection %q: %w", cc.Name, err)
		}
	}
	return c, nil
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return socket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return socket.NoRateLimit()
}
