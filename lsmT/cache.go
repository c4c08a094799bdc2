package lsmt

import (
	"encoding/binary"

	lsmCache "lsmkv/utils/cache"

	"golang.org/x/sync/singleflight"
)

// BlockCache 是多个sstable共享的 (table id, block idx) -> *Block 缓存
type BlockCache struct {
	blocks  *lsmCache.Cache
	loads   singleflight.Group
	metrics *Metrics
}

// NewBlockCache 创建可以缓存size个block的cache
func NewBlockCache(size int, metrics *Metrics) *BlockCache {
	return &BlockCache{
		blocks:  lsmCache.NewCache(size),
		metrics: metrics,
	}
}

// 用于block cache的key: fid(u64) | idx(u32)
func blockCacheKey(fid uint64, idx int) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], fid)
	binary.BigEndian.PutUint32(buf[8:], uint32(idx))
	return buf
}

// GetOrLoad 先查缓存，未命中时调用load解码并写入缓存；同一个block的并发load只会执行一次
func (c *BlockCache) GetOrLoad(fid uint64, idx int, load func() (*Block, error)) (*Block, error) {
	key := blockCacheKey(fid, idx)
	if blk, ok := c.blocks.Get(key); ok && blk != nil {
		c.metrics.cacheHit()
		return blk.(*Block), nil
	}
	c.metrics.cacheMiss()

	v, err, _ := c.loads.Do(string(key), func() (interface{}, error) {
		b, err := load()
		if err != nil {
			return nil, err
		}
		c.blocks.Set(key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}

// Evict 删除一个table所有的block
func (c *BlockCache) Evict(fid uint64, numBlocks int) {
	for i := 0; i < numBlocks; i++ {
		c.blocks.Del(blockCacheKey(fid, i))
	}
}

// Len 缓存中block的个数
func (c *BlockCache) Len() int {
	return c.blocks.Len()
}
