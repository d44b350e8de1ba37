package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	sm.Register("database", record("database"))
	sm.Register("redis", record("redis"))
	sm.Register("otel", record("otel"))

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"otel", "redis", "database"}, order)

	// repeated calls do not rerun closers
	require.NoError(t, sm.Shutdown())
	assert.Len(t, order, 3)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), nil, time.Second)
	boom := errors.New("flush failed")
	ran := false

	sm.Register("first", func(context.Context) error { ran = true; return nil })
	sm.Register("second", func(context.Context) error { return boom })

	err := sm.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second")
	assert.True(t, ran)
}

func TestShutdownManager_WaitStopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	sm := NewShutdownManager(quietLogger(), server, time.Second)
	closed := false
	sm.Register("store", func(context.Context) error { closed = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.Wait(ctx))
	assert.True(t, closed)

	select {
	case err := <-serveErr:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
