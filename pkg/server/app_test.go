package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunContextClosesResourcesInReverse(t *testing.T) {
	var closed []string
	app := New(nil, nil, nil, time.Second)
	app.AddResource("clickhouse", closerFunc(func() error {
		closed = append(closed, "clickhouse")
		return nil
	}))
	app.AddResource("redis", closerFunc(func() error {
		closed = append(closed, "redis")
		return errors.New("already closed")
	}))
	app.AddResource("nil", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"redis", "clickhouse"}, closed)
}
