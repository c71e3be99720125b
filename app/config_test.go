package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"ENV", "PORT", "DATABASE_URL", "ADMIN_EMAILS", "KAFKA_BROKERS", "SWEEP_INTERVAL", "DEV_LOGIN", "CONFLICT_RETRIES"} {
		t.Setenv(k, "")
	}
	t.Setenv("DB_NAME", "lending_dev")

	cfg := loadConfig()

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "3001", cfg.Port)
	assert.Contains(t, cfg.DatabaseURL, "dbname=lending_dev")
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 6, cfg.ConflictRetries)
	assert.Empty(t, cfg.AdminEmails)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.DevLogin)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lending")
	t.Setenv("ADMIN_EMAILS", " Ops@Corp.Test , ,it@corp.test")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("CONFLICT_RETRIES", "3")
	t.Setenv("WEB_ORIGIN", "https://a.test,https://b.test")

	cfg := loadConfig()

	assert.False(t, cfg.IsDev())
	assert.Equal(t, "postgres://u:p@db:5432/lending", cfg.DatabaseURL)
	assert.Equal(t, []string{"ops@corp.test", "it@corp.test"}, cfg.AdminEmails)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3, cfg.ConflictRetries)
	assert.Len(t, cfg.WebOrigins, 2)
}

func TestCorsConfig(t *testing.T) {
	open := corsConfig([]string{"*"})
	assert.True(t, open.AllowAllOrigins)
	assert.False(t, open.AllowCredentials)

	strict := corsConfig([]string{"https://lend.corp.test"})
	assert.False(t, strict.AllowAllOrigins)
	assert.True(t, strict.AllowCredentials)
	assert.Equal(t, []string{"https://lend.corp.test"}, strict.AllowOrigins)
	assert.NoError(t, strict.Validate())
}
