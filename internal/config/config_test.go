package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDSN(t *testing.T) {
	lite := DatabaseConfig{Driver: "sqlite", Name: "app", Path: "/var/data"}
	if !lite.IsSQLite() {
		t.Error("sqlite driver should report IsSQLite")
	}
	if got := lite.DSN(); got != "/var/data/app.db" {
		t.Errorf("DSN = %q", got)
	}

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "app", Password: "pw", Name: "authz"}
	want := "postgres://app:pw@db:5432/authz?sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if pg.IsSQLite() {
		t.Error("postgres driver should not report IsSQLite")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
database:
  driver: sqlite
  name: testapp
jwt_secret: s3cret
resources:
  - app: installs
    name: location
    table: locations
    fields:
      - name: name
        type: string
`
	if err := os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Name != "testapp" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("jwt_secret = %q", cfg.JWTSecret)
	}
	if len(cfg.Resources) != 1 || cfg.Resources[0].App != "installs" {
		t.Fatalf("resources = %+v", cfg.Resources)
	}
	if cfg.Resources[0].Fields[0].Name != "name" {
		t.Errorf("fields = %+v", cfg.Resources[0].Fields)
	}
	// Defaults fill what the file omits.
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want the info default", cfg.Log.Level)
	}
}
