package relay

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDialer 统计拨号次数并返回独立的 fakeConn
func countingDialer(dials *int32) Dialer {
	return func(string) (Conn, error) {
		atomic.AddInt32(dials, 1)
		return newFakeConn(), nil
	}
}

func newTestRegistry(dials *int32) *Registry {
	return NewRegistry(&LinkOptions{Dialer: countingDialer(dials)}, nil)
}

const testTarget = "wss://speech.example.com/ws"

func TestGetOrCreateReturnsSameLink(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	l1, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)
	l2, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	assert.Same(t, l1, l2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
}

func TestGetOrCreateConcurrentSingleLink(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	const workers = 16
	links := make([]*Link, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := r.GetOrCreate("m1", testTarget, nil, nil)
			assert.NoError(t, err)
			links[i] = l
		}(i)
	}
	wg.Wait()

	// 并发调用同一 sessionId 必须全部拿到同一条 Link
	for i := 1; i < workers; i++ {
		assert.Same(t, links[0], links[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreateAfterCloseCreatesFreshLink(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	l1, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	r.Close("m1")
	assert.Equal(t, StateClosed, l1.State())

	l2, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	assert.NotSame(t, l1, l2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
}

func TestGetOrCreateSkipsDeadLink(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	l1, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	// Link 因传输失败自行关闭，但注册表条目尚未移除
	require.NoError(t, l1.Close())

	l2, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)
	assert.NotSame(t, l1, l2)
}

func TestCloseIsNoopForUnknownSession(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	_, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	// 关闭不存在的会话不报错，也不影响其他会话
	r.Close("unknown")
	r.Close("unknown")
	assert.Equal(t, 1, r.Len())

	// 重复关闭同一会话同样安全
	r.Close("m1")
	r.Close("m1")
	assert.Equal(t, 0, r.Len())
}

func TestReplaceClosesPreviousLink(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)
	defer r.CloseAll()

	l1, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)

	l2, err := r.Replace("m1", testTarget, nil, nil)
	require.NoError(t, err)

	assert.NotSame(t, l1, l2)
	assert.Equal(t, StateClosed, l1.State())
	assert.Equal(t, StateStreaming, l2.State())
	assert.Equal(t, 1, r.Len())
}

func TestCloseAll(t *testing.T) {
	var dials int32
	r := newTestRegistry(&dials)

	l1, err := r.GetOrCreate("m1", testTarget, nil, nil)
	require.NoError(t, err)
	l2, err := r.GetOrCreate("m2", testTarget, nil, nil)
	require.NoError(t, err)

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateClosed, l1.State())
	assert.Equal(t, StateClosed, l2.State())
}

func TestGetOrCreatePropagatesCreationFailure(t *testing.T) {
	r := NewRegistry(nil, nil)
	defer r.CloseAll()

	_, err := r.GetOrCreate("m1", "wss://mock-meeting-url/m1", nil, nil)
	assert.ErrorIs(t, err, ErrMisconfiguredUpstream)
	assert.Equal(t, 0, r.Len())
}
