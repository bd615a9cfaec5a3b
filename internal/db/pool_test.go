package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-sync-controller/internal/config"
)

func writePassword(t *testing.T, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o600))
	return path
}

func TestPoolConfig(t *testing.T) {
	t.Parallel()

	passwordFile := writePassword(t, "s3cret")

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{
			name:    "nil config",
			wantErr: "database configuration is required",
		},
		{
			name: "pool sizing and lifetime",
			cfg: &config.DatabaseConfig{
				Host: "db", Port: 5432, User: "sync", Database: "sync", SSLMode: "disable",
				PasswordFile: passwordFile, MaxOpenConns: 12, MaxIdleConns: 3, ConnMaxLifetime: "45m",
			},
		},
		{
			name: "bad lifetime",
			cfg: &config.DatabaseConfig{
				Host: "db", Port: 5432, User: "sync", Database: "sync",
				PasswordFile: passwordFile, ConnMaxLifetime: "forever",
			},
			wantErr: "connMaxLifetime",
		},
		{
			name: "missing password file",
			cfg: &config.DatabaseConfig{
				Host: "db", Port: 5432, User: "sync", Database: "sync",
				PasswordFile: filepath.Join(t.TempDir(), "absent"),
			},
			wantErr: "failed to build connection string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pc, err := PoolConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int32(12), pc.MaxConns)
			assert.Equal(t, int32(3), pc.MinConns)
			assert.Equal(t, 45*time.Minute, pc.MaxConnLifetime)
			assert.Equal(t, "s3cret", pc.ConnConfig.Password)
			assert.Equal(t, "db", pc.ConnConfig.Host)
			assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
		})
	}
}

func TestNewPool_Unreachable(t *testing.T) {
	t.Parallel()

	cfg := &config.DatabaseConfig{
		Host: "127.0.0.1", Port: 1, User: "sync", Database: "sync", SSLMode: "disable",
		PasswordFile: writePassword(t, "pw"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, cfg, WithStartupTimeout(500*time.Millisecond))
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "failed to ping database")
}
