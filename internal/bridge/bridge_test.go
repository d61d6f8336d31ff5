package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/mainthread"
)

func TestRunAndWaitValue(t *testing.T) {
	ex := mainthread.New(4, nil)
	defer ex.Close()

	res := RunAndWait(ex, func() (int64, error) { return 42, nil })
	require.True(t, res.OK())
	assert.Equal(t, int64(42), res.Value)
}

func TestRunAndWaitError(t *testing.T) {
	ex := mainthread.New(4, nil)
	defer ex.Close()

	res := RunAndWait(ex, func() (string, error) {
		return "", apperr.NotFound("Note with ID '7' not found.")
	})
	require.False(t, res.OK())
	assert.Equal(t, apperr.KindNotFound, res.Kind())
	assert.Equal(t, "Note with ID '7' not found.", res.Err.Error())
}

func TestRunAndWaitPanicIsHostFailure(t *testing.T) {
	ex := mainthread.New(4, nil)
	defer ex.Close()

	res := RunAndWait(ex, func() (int, error) { panic("collection locked") })
	require.Error(t, res.Err)
	assert.Equal(t, apperr.KindHost, res.Kind())
	assert.Contains(t, res.Err.Error(), "collection locked")
}

func TestResumesOnlyAfterWorkFinished(t *testing.T) {
	ex := mainthread.New(4, nil)
	defer ex.Close()

	finished := false
	err := Do(ex, func() error {
		time.Sleep(20 * time.Millisecond)
		finished = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, finished)
}

func TestClosedExecutor(t *testing.T) {
	ex := mainthread.New(1, nil)
	ex.Close()
	err := Do(ex, func() error { return nil })
	assert.ErrorIs(t, err, apperr.ErrClosed)
}

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture[int]()
	assert.True(t, f.Resolve(1, nil))
	assert.False(t, f.Resolve(2, errors.New("late")))
	res := f.Wait()
	assert.Equal(t, 1, res.Value)
	assert.NoError(t, res.Err)
}

// Concurrent read-modify-write through the bridge never tears: each
// increment observes the previous one fully applied.
func TestSerializedMutation(t *testing.T) {
	ex := mainthread.New(8, nil)
	defer ex.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Do(ex, func() error {
				v := counter
				time.Sleep(10 * time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	res := RunAndWait(ex, func() (int, error) { return counter, nil })
	assert.Equal(t, 50, res.Value)
}
