package transform

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowEngine embeds Engine so only the methods under test need bodies.
type slowEngine struct {
	Engine
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowEngine) Rotate(ctx context.Context, pdf []byte, angle int) ([]byte, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return pdf, nil
}

func TestLimitedCapsConcurrency(t *testing.T) {
	inner := &slowEngine{}
	l := NewLimited(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Rotate(context.Background(), []byte("x"), 90)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, inner.peak.Load(), int32(1))
}

func TestLimitedHonoursContext(t *testing.T) {
	inner := &slowEngine{}
	l := NewLimited(inner, 1)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Rotate(ctx, []byte("x"), 90)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
