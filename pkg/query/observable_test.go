package query_test

import (
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-query/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservable_DeliversWritesInOrder(t *testing.T) {
	o := query.NewObservable(0)
	defer o.Close()

	var mu sync.Mutex
	var received []int
	unsubscribe := o.Subscribe(func(v int) {
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
	})
	defer unsubscribe()

	for i := 1; i <= 5; i++ {
		o.Set(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 5
	}, time.Second, 10*time.Millisecond, "Subscriber did not receive all writes in time")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, received)
	assert.Equal(t, 5, o.Get())
}

func TestObservable_CurrentValueIsNotReplayed(t *testing.T) {
	o := query.NewObservable("initial")
	defer o.Close()

	var mu sync.Mutex
	var received []string
	o.Subscribe(func(v string) {
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
	})

	o.Set("next")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"next"}, received)
}

func TestObservable_Unsubscribe(t *testing.T) {
	o := query.NewObservable(0)
	defer o.Close()

	var mu sync.Mutex
	var received []int
	unsubscribe := o.Subscribe(func(v int) {
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
	})

	o.Set(1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	unsubscribe()
	o.Set(2)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1}, received, "No writes should be delivered after unsubscribe")
	assert.Equal(t, 2, o.Get(), "The cell itself still tracks the latest write")
}

func TestObservable_SlowSubscriberDoesNotBlockWrites(t *testing.T) {
	o := query.NewObservable(0)
	defer o.Close()

	release := make(chan struct{})
	var mu sync.Mutex
	var received []int
	o.Subscribe(func(v int) {
		<-release
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
	})

	const writes = 500
	wrote := make(chan struct{})
	go func() {
		for i := 1; i <= writes; i++ {
			o.Set(i)
		}
		close(wrote)
	}()

	select {
	case <-wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("Writes blocked behind a slow subscriber")
	}
	assert.Equal(t, writes, o.Get(), "Get must not wait on delivery")

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == writes
	}, 5*time.Second, 10*time.Millisecond, "All buffered writes should still be delivered")

	mu.Lock()
	defer mu.Unlock()
	for i := range received {
		if received[i] != i+1 {
			t.Fatalf("Write %d delivered out of order: got %d", i+1, received[i])
		}
	}
}

func TestObservable_SetAfterCloseIsDropped(t *testing.T) {
	o := query.NewObservable(1)

	var mu sync.Mutex
	var received []int
	o.Subscribe(func(v int) {
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
	})

	o.Close()
	o.Set(2)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, received)
	assert.Equal(t, 1, o.Get(), "Close freezes the current value")
}
