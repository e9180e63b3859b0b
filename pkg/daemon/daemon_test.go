package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aetherless/aetherless/pkg/config"
	"github.com/aetherless/aetherless/pkg/dataplane"
)

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aetherless.yaml")
	content := "interface: eth0\npolicy: permissive\napi_addr: 127.0.0.1:8080\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d := New(Options{
		ConfigFile: path,
		Interface:  "eth1",
		Policy:     "strict",
		APIAddr:    "0.0.0.0:9000",
	})
	cfg, err := d.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Interface != "eth1" || cfg.Policy != "strict" || cfg.APIAddr != "0.0.0.0:9000" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigMissingDefaultPath(t *testing.T) {
	d := New(Options{Interface: "eth0"})
	cfg, err := d.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Backend != config.BackendSoftware {
		t.Errorf("Backend = %q, want software default", cfg.Backend)
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	d := New(Options{ConfigFile: "/nonexistent/aetherless.yaml"})
	if _, err := d.loadConfig(); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	d := New(Options{Interface: "eth0", Policy: "lenient"})
	if _, err := d.loadConfig(); err == nil {
		t.Error("expected error for invalid policy override")
	}
}

func TestSeedTable(t *testing.T) {
	table := dataplane.NewTable()
	err := seedTable(table, []config.PortBinding{
		{Port: 8080, PID: 4242, Addr: "10.0.0.5"},
		{Port: 53, PID: 7},
	})
	if err != nil {
		t.Fatalf("seedTable: %v", err)
	}

	val, ok := table.Lookup(8080)
	if !ok || val.PID != 4242 || dataplane.UnpackAddr(val.Addr).String() != "10.0.0.5" {
		t.Errorf("entry 8080 = %+v ok=%v", val, ok)
	}
	val, ok = table.Lookup(53)
	if !ok || dataplane.UnpackAddr(val.Addr).String() != "127.0.0.1" {
		t.Errorf("entry 53 = %+v ok=%v, want loopback default", val, ok)
	}
}

func TestSeedTableRejectsPortZero(t *testing.T) {
	table := dataplane.NewTable()
	if err := seedTable(table, []config.PortBinding{{Port: 0, PID: 1}}); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestRunRequiresInterface(t *testing.T) {
	d := New(Options{})
	if err := d.Run(context.Background()); err == nil {
		t.Error("expected error without interface")
	}
}
