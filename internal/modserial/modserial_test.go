package modserial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterSingleCallerProceedsImmediately(t *testing.T) {
	s := New()
	release, err := s.Enter(context.Background(), "dc=example,dc=com")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
}

func TestEnterSerializesSameDN(t *testing.T) {
	s := New()
	const n = 20
	var mu sync.Mutex
	var order []int
	var active int32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.Enter(context.Background(), "cn=x,dc=example,dc=com")
			require.NoError(t, err)
			require.Equal(t, int32(0), active, "no interleaving: exactly one op active on this DN at a time")
			active = 1
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			active = 0
			release()
		}()
	}
	wg.Wait()
	assert.Len(t, order, n)
}

func TestEnterDoesNotSerializeDifferentDNs(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	release1, err := s.Enter(context.Background(), "cn=a,dc=example,dc=com")
	require.NoError(t, err)

	wg.Add(1)
	go func() {
		defer wg.Done()
		release2, err := s.Enter(context.Background(), "cn=b,dc=example,dc=com")
		require.NoError(t, err)
		started <- struct{}{}
		release2()
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("a different DN must not be blocked by an unrelated DN's holder")
	}
	wg.Wait()
	release1()
}

func TestEnterCancelledBeforeHead(t *testing.T) {
	s := New()
	release1, err := s.Enter(context.Background(), "cn=x,dc=example,dc=com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release2, err := s.Enter(ctx, "cn=x,dc=example,dc=com")
	assert.Error(t, err)
	assert.Nil(t, release2)

	release1()
}

func TestQueueErasedWhenEmpty(t *testing.T) {
	s := New()
	release, err := s.Enter(context.Background(), "cn=x,dc=example,dc=com")
	require.NoError(t, err)
	release()

	s.mu.Lock()
	_, exists := s.queues["cn=x,dc=example,dc=com"]
	s.mu.Unlock()
	assert.False(t, exists, "FIFO should be erased once its last waiter leaves")
}
