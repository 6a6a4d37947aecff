package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserLocksMutualExclusion(t *testing.T) {
	locks := newUserLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("user-1")
			defer unlock()

			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			mu.Lock()
			holders--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Equal(t, 0, locks.active())
}

func TestUserLocksIndependentUsers(t *testing.T) {
	locks := newUserLocks()

	unlockA := locks.Lock("a")
	defer unlockA()

	// A different user's lock must not block.
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done

	require.Equal(t, 1, locks.active())
}

func TestUserLocksEntryRemovedAfterRelease(t *testing.T) {
	locks := newUserLocks()

	unlock := locks.Lock("gone")
	require.Equal(t, 1, locks.active())
	unlock()
	require.Equal(t, 0, locks.active())
}
