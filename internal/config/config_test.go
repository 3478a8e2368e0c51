package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("app:\n  version: 1.2.0\n"))
	require.NoError(t, err)

	assert.Equal(t, "driving-school-admin", cfg.App.Name)
	assert.Equal(t, "1.2.0", cfg.App.Version)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Import.HistoryLimit)
	assert.Equal(t, 1, cfg.Workers.Import.Count)
	assert.Equal(t, 3, cfg.Workers.Import.MaxAttempts)
	assert.Equal(t, "redis", cfg.Import.ReviewBackend)
	assert.Equal(t, "imports", cfg.Redis.ImportQueue)
	assert.Equal(t, 7*24*time.Hour, cfg.Redis.ReviewTTL)
}

func TestParseEnvOverridesSecrets(t *testing.T) {
	t.Setenv("DATABASE_PASSWORD", "from-env")
	t.Setenv("S3_SECRET_KEY", "s3-env")

	cfg, err := Parse([]byte("database:\n  password: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "s3-env", cfg.Storage.S3.SecretKey)
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "mysql",
			yaml: "database:\n  user: app\n  password: pw\n  host: db\n  port: 3306\n  name: school\n  parse_time: true\n",
			want: "app:pw@tcp(db:3306)/school?charset=utf8mb4&parseTime=true&loc=Local",
		},
		{
			name: "sqlite",
			yaml: "database:\n  driver: sqlite\n  path: /var/lib/school.db\n",
			want: "/var/lib/school.db?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_PASSWORD", "")
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.DatabaseDSN())
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("app: [unterminated"))
	require.Error(t, err)
}
