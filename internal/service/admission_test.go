package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/reelsub/internal/domain"
)

func TestAdmission_AcquireUpToLimit(t *testing.T) {
	a := NewAdmission(2)

	require.NoError(t, a.Acquire("client1"))
	require.NoError(t, a.Acquire("client1"))

	err := a.Acquire("client1")
	assert.ErrorIs(t, err, domain.ErrConcurrencyLimit)
	assert.Equal(t, domain.ErrorKindResourceLimit, domain.Classify(err))
	assert.Equal(t, 2, a.Active("client1"))
}

func TestAdmission_ClientsAreIndependent(t *testing.T) {
	a := NewAdmission(1)

	require.NoError(t, a.Acquire("client1"))
	assert.NoError(t, a.Acquire("client2"))
	assert.Error(t, a.Acquire("client1"))
}

func TestAdmission_ReleaseFreesSlot(t *testing.T) {
	a := NewAdmission(1)

	require.NoError(t, a.Acquire("client1"))
	a.Release("client1")
	assert.Equal(t, 0, a.Active("client1"))
	assert.NoError(t, a.Acquire("client1"))

	a.Release("client1")
	a.Release("client1")
	assert.Equal(t, 0, a.Active("client1"))
}

func TestAdmission_AnonymousSharesBucket(t *testing.T) {
	a := NewAdmission(1)

	require.NoError(t, a.Acquire(""))
	assert.ErrorIs(t, a.Acquire(""), domain.ErrConcurrencyLimit)
	assert.Equal(t, 1, a.Active(anonymousClient))
}

func TestAdmission_ZeroLimitDisables(t *testing.T) {
	a := NewAdmission(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Acquire("client1"))
	}
}

func TestAdmission_Concurrent(t *testing.T) {
	a := NewAdmission(5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Acquire("client1") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, admitted)
}
