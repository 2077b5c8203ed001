package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_ENV_PATH", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("ARCHIVE_ENABLED", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("ARCHIVE_AT", "")
	t.Setenv("MYSQL_DSN", "")
}

func TestLoadDefaults(t *testing.T) {
	baseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != StoreMemory || cfg.ListenAddr != ":8080" || cfg.PointsPerActivity != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CodePrefix != "FT" || cfg.ArchiveAt != "00:15" || cfg.Location() != time.UTC {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.JWTTTL != 30*24*time.Hour {
		t.Fatalf("jwt ttl = %v", cfg.JWTTTL)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	baseEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("POINTS_PER_ACTIVITY=25\nCODE_PREFIX=ab\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV_PATH", path)
	t.Setenv("POINTS_PER_ACTIVITY", "")
	t.Setenv("CODE_PREFIX", "")
	os.Unsetenv("POINTS_PER_ACTIVITY")
	os.Unsetenv("CODE_PREFIX")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PointsPerActivity != 25 || cfg.CodePrefix != "AB" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"mysql needs dsn", map[string]string{"STORE_DRIVER": "mysql"}, "MYSQL_DSN"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"jwt secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"archive needs bucket", map[string]string{"ARCHIVE_ENABLED": "true"}, "S3_BUCKET"},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
		{"bad archive time", map[string]string{"ARCHIVE_AT": "25:99"}, "ARCHIVE_AT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			baseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
