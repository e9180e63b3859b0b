package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aetherless.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "interface: eth0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interface != "eth0" {
		t.Errorf("Interface = %q, want eth0", cfg.Interface)
	}
	if cfg.Policy != "permissive" {
		t.Errorf("Policy = %q, want permissive", cfg.Policy)
	}
	if cfg.Backend != BackendSoftware {
		t.Errorf("Backend = %q, want software", cfg.Backend)
	}
	if cfg.APIAddr != "127.0.0.1:8080" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
interface: eth1
policy: strict
backend: xdp
workers: 4
api_addr: 0.0.0.0:9000
xdp:
  object: /usr/lib/aetherless/xdp_redirect.o
trace:
  file: /var/log/aetherless/trace.log
ports:
  - port: 8080
    pid: 4242
    addr: 10.0.0.5
  - port: 53
    pid: 7
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Policy != "strict" || cfg.Backend != BackendXDP || cfg.Workers != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[0].PID != 4242 {
		t.Errorf("ports = %+v", cfg.Ports)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/aetherless.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad policy", "policy: lenient\n", "unknown policy"},
		{"bad backend", "backend: hardware\n", "unknown backend"},
		{"xdp without object", "backend: xdp\n", "requires xdp.object"},
		{"port zero", "ports:\n  - port: 0\n    pid: 1\n", "port 0"},
		{"duplicate port", "ports:\n  - port: 80\n    pid: 1\n  - port: 80\n    pid: 2\n", "duplicate"},
		{"bad addr", "ports:\n  - port: 80\n    pid: 1\n    addr: nope\n", "invalid addr"},
		{"ipv6 addr", "ports:\n  - port: 80\n    pid: 1\n    addr: \"::1\"\n", "not IPv4"},
		{"negative workers", "workers: -1\n", "workers"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "interface: eth0\n"+tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateMaxBindings(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("interface: eth0\nports:\n")
	for i := 1; i <= 1025; i++ {
		fmt.Fprintf(&sb, "  - port: %d\n    pid: 1\n", i)
	}
	_, err := Load(writeConfig(t, sb.String()))
	if err == nil || !strings.Contains(err.Error(), "too many") {
		t.Errorf("error = %v, want too many port bindings", err)
	}
}
