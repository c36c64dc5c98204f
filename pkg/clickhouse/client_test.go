package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch.local",
		Port:        9440,
		Database:    "ml",
		User:        "reader",
		Password:    "secret",
		DialTimeout: 2 * time.Second,
		MaxExecTime: 90 * time.Second,
	}
	opt := options(cfg)
	require.NotNil(t, opt)
	assert.Equal(t, []string{"ch.local:9440"}, opt.Addr)
	assert.Equal(t, "ml", opt.Auth.Database)
	assert.Equal(t, "reader", opt.Auth.Username)
	assert.Equal(t, ch.Native, opt.Protocol)
	assert.Equal(t, 90, opt.Settings["max_execution_time"])
	assert.Equal(t, 2, opt.Settings["readonly"])

	cfg.UseHTTP = true
	cfg.MaxExecTime = 0
	opt = options(cfg)
	assert.Equal(t, ch.HTTP, opt.Protocol)
	_, ok := opt.Settings["max_execution_time"]
	assert.False(t, ok)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	require.Error(t, err)
}
