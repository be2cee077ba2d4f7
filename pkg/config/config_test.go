package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 20, cfg.Enrollment.MinCredits)
	assert.Equal(t, 2.0, cfg.Enrollment.PassingGrade)
	assert.Equal(t, 3*time.Second, cfg.Enrollment.LockTimeout)
	assert.Equal(t, 1, cfg.Enrollment.MaxRetries)
	assert.False(t, cfg.Allocation.EnforceDepartment)
	assert.Equal(t, 10*time.Minute, cfg.Catalog.CacheTTL)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORAGE_DRIVER", "MEMORY")
	v.Set("ENROLLMENT_MIN_CREDITS", 16)
	v.Set("ENROLLMENT_LOCK_TIMEOUT", "not-a-duration")
	v.Set("ENROLLMENT_MAX_RETRIES", -4)
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, 16, cfg.Enrollment.MinCredits)
	assert.Equal(t, 3*time.Second, cfg.Enrollment.LockTimeout)
	assert.Equal(t, 0, cfg.Enrollment.MaxRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
