package utils

import (
	"context"
	"sync"
)

// Closer 用于通知后台协程退出，并等待它们退出完成
type Closer struct {
	waiting sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// 创建Closer，initial是需要等待的协程数
func NewCloser(initial int) *Closer {
	closer := &Closer{}
	closer.ctx, closer.cancel = context.WithCancel(context.Background())
	closer.waiting.Add(initial)
	return closer
}

// Add用于表示需要等待的下游协程+n
func (c *Closer) Add(n int) {
	c.waiting.Add(n)
}

// Done用于下游协程通知上游回收完毕
func (c *Closer) Done() {
	c.waiting.Done()
}

// Signal 通知下游协程退出，可以重复调用
func (c *Closer) Signal() {
	c.once.Do(c.cancel)
}

// HasBeenClosed 下游协程通过它监听退出信号
func (c *Closer) HasBeenClosed() <-chan struct{} {
	return c.ctx.Done()
}

// Ctx 返回随Signal一起取消的context，可以传给阻塞操作
func (c *Closer) Ctx() context.Context {
	return c.ctx
}

// Close 通知下游协程退出，并等待它们结束
func (c *Closer) Close() {
	c.Signal()
	c.waiting.Wait()
}
