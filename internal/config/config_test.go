package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	// 没有配置文件时全部走默认值
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "devconnect", cfg.AppName)
	assert.Equal(t, "8080", cfg.APIServer.Port)
	assert.Equal(t, 30*time.Second, cfg.APIServer.ReadTimeout)
	assert.NotEmpty(t, cfg.APIServer.CORS.AllowedOrigins)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "devconnect-connection-accepted", cfg.Kafka.ConnectionAcceptedTopic)
	assert.Equal(t, "devconnect-api-server-group", cfg.Kafka.ConsumerGroup)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, int64(5), cfg.Storage.MaxFileSizeMB)

	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
	assert.NotEmpty(t, cfg.Auth.JWTSecretKey)

	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Less(t, cfg.WebSocket.PingPeriodSeconds, cfg.WebSocket.PongWaitSeconds)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	yaml := []byte("API_SERVER:\n  PORT: \"9000\"\nAUTH:\n  JWT_EXPIRY: 1h\n")
	require.NoError(t, os.WriteFile(path, yaml, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.APIServer.Port)
	assert.Equal(t, time.Hour, cfg.Auth.JWTExpiry)
	// 未覆盖的键保持默认
	assert.Equal(t, "devconnect", cfg.AppName)
}
