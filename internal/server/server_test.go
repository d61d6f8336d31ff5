package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/aprobridge/internal/sse"
)

func hello() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hi")
	})
}

func TestStartStopIdempotent(t *testing.T) {
	s := New("127.0.0.1:0", hello(), nil)
	assert.False(t, s.Running())
	require.NoError(t, s.Stop(context.Background()))

	require.NoError(t, s.Start())
	addr := s.BoundAddr()
	require.NoError(t, s.Start())
	assert.Equal(t, addr, s.BoundAddr(), "second Start must not rebind")
	assert.True(t, s.Running())

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hi", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Running())

	_, err = http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestRestart(t *testing.T) {
	s := New("127.0.0.1:0", hello(), nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())
	assert.True(t, s.Running())
}

func TestStartBindError(t *testing.T) {
	a := New("127.0.0.1:0", hello(), nil)
	require.NoError(t, a.Start())
	defer a.Stop(context.Background())

	b := New(a.BoundAddr(), hello(), nil)
	assert.Error(t, b.Start())
	assert.False(t, b.Running())
}

func TestWaitReturnsAfterStop(t *testing.T) {
	s := New("127.0.0.1:0", hello(), nil)
	assert.NoError(t, s.Wait(context.Background()))

	require.NoError(t, s.Start())
	done := make(chan error, 1)
	go func() { done <- s.Wait(context.Background()) }()

	require.NoError(t, s.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestStopEndsEventStreams(t *testing.T) {
	broker := sse.NewBroker(time.Hour)
	s := New("127.0.0.1:0", broker, nil)
	s.OnShutdown(broker.Close)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.BoundAddr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return broker.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, s.Stop(ctx), "an open stream must not hold up shutdown")
	assert.Less(t, time.Since(start), time.Second)

	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
}
