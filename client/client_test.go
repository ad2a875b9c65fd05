package client_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/cervertest"
	"github.com/ermiry/cengine/client"
)

var identity = cengine.Identity{ID: 0x4CE, Version: cengine.ProtocolVersion{Major: 1}}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	s := cervertest.New(t, cervertest.Config{
		Identity: identity,
		Info:     cengine.CerverInfo{Name: "config"},
		Echo:     true,
		Logger:   zaptest.NewLogger(t),
	})

	cfg, err := client.ParseConfig([]byte(`
name: from-config
protocol:
  id: 1230
  version: {major: 1, minor: 0}
connections:
  - name: main
    address: ` + s.Addr() + `
    rate_limit: {messages_per_second: 100, burst: 10, enabled: true}
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	c, err := client.NewFromConfig(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	t.Cleanup(c.Teardown)

	if c.Name() != "from-config" {
		t.Errorf("Name() = %q", c.Name())
	}
	conn, ok := c.ConnectionByName("main")
	if !ok {
		t.Fatal("Connection main not created")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.ConnectToCerver(ctx, conn); err != nil {
		t.Fatalf("ConnectToCerver() error = %v", err)
	}

	var echoed string
	c.SetCustomHandler(func(_ cengine.Connection, p *cengine.Packet) { echoed = string(p.Data) })
	if err := c.RequestToCerver(ctx, conn, cengine.NewPacket(cengine.PacketTypeCustom, []byte("hello"))); err != nil {
		t.Fatalf("RequestToCerver() error = %v", err)
	}
	if echoed != "hello" {
		t.Errorf("echo = %q, want hello", echoed)
	}
}

func TestRateLimitConfigs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      *client.RateLimitConfig
		wantEnabled bool
		wantBurst   int
	}{
		{name: "default", config: client.DefaultRateLimitConfig(), wantEnabled: true, wantBurst: 200},
		{name: "none", config: client.NoRateLimit(), wantEnabled: false, wantBurst: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.config.Enabled != tt.wantEnabled || tt.config.Burst != tt.wantBurst {
				t.Errorf("config = %+v", tt.config)
			}
		})
	}
}
