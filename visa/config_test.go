package visa_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonanatree/visapay/visa"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("VISA_CONFIG", "")
		cfg, err := visa.LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, visa.DefaultConfig(), cfg)
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "visa.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
store: sqlite
sqlite_path: /tmp/x.db
session_ttl: 5m
dynamodb:
  table: payments
`), 0o600))

		t.Setenv("VISA_HTTP_ADDR", ":9100")
		t.Setenv("VISA_DYNAMODB_REGION", "eu-west-1")

		cfg, err := visa.LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, ":9100", cfg.HTTPAddr)
		require.Equal(t, visa.StoreSQLite, cfg.Store)
		require.Equal(t, "/tmp/x.db", cfg.SQLitePath)
		require.Equal(t, 5*time.Minute, cfg.SessionTTL)
		require.Equal(t, "payments", cfg.DynamoDB.Table)
		require.Equal(t, "eu-west-1", cfg.DynamoDB.Region)
		require.Equal(t, "localhost:8583", cfg.ISO8583Addr)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := visa.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("VISA_CONFIG", "")
		t.Setenv("VISA_STORE", "postgres")
		_, err := visa.LoadConfig("")
		require.ErrorContains(t, err, "db_dsn")

		t.Setenv("VISA_STORE", "memory")
		t.Setenv("VISA_BACKEND", "rpc")
		_, err = visa.LoadConfig("")
		require.ErrorContains(t, err, "backend_url")
	})
}
