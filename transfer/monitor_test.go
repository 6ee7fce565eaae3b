package transfer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time                  { return f.now }
func (f *fakeClock) Since(t time.Time) time.Duration { return f.now.Sub(t) }

func TestBase_IsStalled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := newBase(client)
	clock := &fakeClock{now: time.Unix(0, 0)}
	b.SetTimeProvider(clock)
	b.touchActivity()

	assert.False(t, b.IsStalled(time.Second))
	assert.False(t, b.IsStalled(0))

	clock.now = clock.now.Add(2 * time.Second)
	assert.True(t, b.IsStalled(time.Second))
}

func TestBase_PendingBytesTracking(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := newBase(client)
	b.recordTransferred(100)
	assert.EqualValues(t, 100, b.GetPendingBytes())

	var acked uint64
	b.OnAcknowledge(func(n uint64) { acked = n })
	b.SetAcknowledgedBytes(60)
	assert.EqualValues(t, 60, acked)
	assert.EqualValues(t, 40, b.GetPendingBytes())
}
