package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("STOCK_ADJUST_UNDERFLOW", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	policy, err := cfg.UnderflowPolicy()
	require.NoError(t, err)
	require.Equal(t, stock.UnderflowClamp, policy)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownUnderflowPolicy(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("STOCK_ADJUST_UNDERFLOW", "wrap")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestUnderflowPolicyReject(t *testing.T) {
	cfg := &Config{StockAdjustUnderflow: "reject"}
	policy, err := cfg.UnderflowPolicy()
	require.NoError(t, err)
	require.Equal(t, stock.UnderflowReject, policy)
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "DEBUG"}))
	require.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "verbose"}))
	require.Equal(t, slog.LevelInfo, logLevel(nil))
}

func TestRedisSettingsShared(t *testing.T) {
	cfg := &Config{RedisAddr: "redis:6379", RedisPassword: "pw", RedisDB: 3}
	require.Equal(t, "redis:6379", cfg.RedisOptions().Addr)
	opt := cfg.AsynqRedis()
	require.Equal(t, cfg.RedisPassword, opt.Password)
	require.Equal(t, cfg.RedisDB, opt.DB)
}
