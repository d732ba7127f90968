package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSerial_RunsInOrder(t *testing.T) {
	s := NewSerial()

	var mu sync.Mutex
	var got []int
	for i := range 100 {
		require.True(t, s.Submit(func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	s.Close()
	require.NoError(t, s.Wait(t.Context()))

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, got)
}

func TestSerial_SubmitAfterClose(t *testing.T) {
	s := NewSerial()
	s.Close()
	s.Close()

	require.False(t, s.Submit(func(context.Context) { t.Error("callback ran after Close") }))
	require.NoError(t, s.Wait(t.Context()))
}

func TestSerial_SubmitDoesNotBlockOnSlowCallback(t *testing.T) {
	s := NewSerial()
	t.Cleanup(s.Close)

	release := make(chan struct{})
	require.True(t, s.Submit(func(context.Context) { <-release }))

	done := make(chan struct{})
	go func() {
		for range 10 {
			s.Submit(func(context.Context) {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked behind a running callback")
	}
	close(release)
}

func TestSerial_CloseAndWaitFromCallback(t *testing.T) {
	s := NewSerial()

	ran := make(chan struct{})
	returned := make(chan error, 1)
	require.True(t, s.Submit(func(ctx context.Context) {
		s.Close()
		returned <- s.Wait(ctx)
	}))
	require.True(t, s.Submit(func(context.Context) { close(ran) }))

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait from inside a callback did not return")
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("callback queued before Close did not run")
	}
	require.NoError(t, s.Wait(t.Context()))
}

func TestSerial_WaitHonorsContext(t *testing.T) {
	s := NewSerial()
	t.Cleanup(s.Close)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	s.Submit(func(context.Context) { <-release })
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
