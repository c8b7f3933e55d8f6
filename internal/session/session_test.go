package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("token is taken once", func(t *testing.T) {
		s := New(time.Minute)

		token := s.Issue("1111 2222 3333 4444")
		require.NotEmpty(t, token)

		card, ok := s.Peek(token)
		require.True(t, ok)
		require.Equal(t, "1111 2222 3333 4444", card)

		card, ok = s.Take(token)
		require.True(t, ok)
		require.Equal(t, "1111 2222 3333 4444", card)

		_, ok = s.Take(token)
		require.False(t, ok)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		s := New(0)
		require.Equal(t, DefaultTTL, s.ttl)

		_, ok := s.Take("")
		require.False(t, ok)

		_, ok = s.Take("not-a-token")
		require.False(t, ok)
	})

	t.Run("expired tokens are rejected and swept", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		s := New(time.Minute)
		s.now = func() time.Time { return now }

		expired := s.Issue("1")
		now = now.Add(30 * time.Second)
		live := s.Issue("2")
		now = now.Add(31 * time.Second)

		_, ok := s.Peek(expired)
		require.False(t, ok)

		require.Equal(t, 1, s.Sweep())
		require.Equal(t, 1, s.Len())

		card, ok := s.Take(live)
		require.True(t, ok)
		require.Equal(t, "2", card)
	})

	t.Run("concurrent take succeeds once", func(t *testing.T) {
		s := New(time.Minute)
		token := s.Issue("1111")

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := s.Take(token); ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), wins)
	})
}
