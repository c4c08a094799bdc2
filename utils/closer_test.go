package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloser(t *testing.T) {
	c := NewCloser(0)
	var exited int32
	for i := 0; i < 3; i++ {
		c.Add(1)
		go func() {
			defer c.Done()
			<-c.HasBeenClosed()
			atomic.AddInt32(&exited, 1)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&exited))
	require.NoError(t, c.Ctx().Err())

	c.Close()
	require.Equal(t, int32(3), atomic.LoadInt32(&exited))
	require.Error(t, c.Ctx().Err())
	// 重复关闭没有副作用
	c.Signal()
	c.Close()
}
