package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/client"
)

const fullConfig = `
name: test-client
protocol:
  id: 1230
  version:
    major: 1
    minor: 2
check_packets: true
request_timeout: 5s
connections:
  - name: main
    address: 127.0.0.1:7000
    protocol: tcp
    max_sleep: 16s
    receive_buffer_size: 4096
    rate_limit:
      messages_per_second: 50
      burst: 100
      enabled: true
    auth:
      data: secret
      admin: true
  - address: ws://127.0.0.1:8080/ws
    protocol: ws
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Name != "test-client" {
		t.Errorf("Name = %q, want test-client", cfg.Name)
	}
	id := cfg.Identity()
	if id.ID != 1230 || id.Version.Major != 1 || id.Version.Minor != 2 {
		t.Errorf("Identity = %+v", id)
	}
	if !cfg.CheckPackets {
		t.Error("Expected check_packets to be set")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if len(cfg.Connections) != 2 {
		t.Fatalf("len(Connections) = %d, want 2", len(cfg.Connections))
	}

	mc := cfg.Connections[0].ConnectionConfig()
	if mc.Name != "main" || mc.Protocol != cengine.ProtocolTCP || mc.MaxSleep != 16*time.Second || mc.ReceiveBufferSize != 4096 {
		t.Errorf("main connection = %+v", mc)
	}
	if mc.RateLimit == nil || !mc.RateLimit.Enabled || mc.RateLimit.MessagesPerSecond != 50 || mc.RateLimit.Burst != 100 {
		t.Errorf("RateLimit = %+v", mc.RateLimit)
	}
	if mc.Auth == nil || string(mc.Auth.Data) != "secret" || !mc.Auth.Admin {
		t.Errorf("Auth = %+v", mc.Auth)
	}

	ws := cfg.Connections[1].ConnectionConfig()
	if ws.Name != "no-name-1" {
		t.Errorf("default name = %q, want no-name-1", ws.Name)
	}
	if ws.MaxSleep != client.DefaultMaxSleep || ws.ReceiveBufferSize != client.DefaultReceiveBufferSize {
		t.Errorf("defaults not applied: %+v", ws)
	}
	if ws.RateLimit != nil || ws.Auth != nil {
		t.Errorf("Expected no rate limit and no auth: %+v", ws)
	}
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("connections:\n  - address: localhost:7000\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Name != client.DefaultClientName {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.RequestTimeout != client.DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.Connections[0].Protocol != cengine.ProtocolTCP {
		t.Errorf("Protocol = %q, want tcp", cfg.Connections[0].Protocol)
	}

	cc := cfg.ClientConfig(nil)
	if cc.Name != cfg.Name || cc.RequestTimeout != cfg.RequestTimeout {
		t.Errorf("ClientConfig = %+v", cc)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing address",
			yaml:    "connections:\n  - name: a\n",
			wantErr: "address is required",
		},
		{
			name:    "unknown protocol",
			yaml:    "connections:\n  - address: x:1\n    protocol: sctp\n",
			wantErr: string(cengine.ErrUnknownProtocol),
		},
		{
			name:    "duplicate names",
			yaml:    "connections:\n  - {name: a, address: x:1}\n  - {name: a, address: x:2}\n",
			wantErr: string(cengine.ErrConnectionNameTaken),
		},
		{
			name:    "bad rate limit",
			yaml:    "connections:\n  - address: x:1\n    rate_limit: {enabled: true}\n",
			wantErr: "rate_limit",
		},
		{
			name:    "bad duration",
			yaml:    "request_timeout: soon\n",
			wantErr: "soon",
		},
		{
			name:    "unknown field",
			yaml:    "nmae: typo\n",
			wantErr: "nmae",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "client.yml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "test-client" {
		t.Errorf("Name = %q", cfg.Name)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want ErrNotExist", err)
	}
}
