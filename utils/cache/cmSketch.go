package cache

import (
	"math/rand"
	"time"
)

// 4行计数，取最小值减少hash冲突带来的影响
const cmDepth = 4

// 一行计数槽，每个计数占4bit，一个byte存两个计数
type cmRow []byte

// Count-Min Sketch
type cmSketch struct {
	rows [cmDepth]cmRow
	seed [cmDepth]uint64
	// mask+1 == 每行计数的个数
	mask uint64
}

func newCmRow(numCounters int64) cmRow {
	return cmRow(make([]byte, numCounters/2))
}

// 计数最大到15
func (r cmRow) increment(n uint64) {
	i := n / 2
	s := (n & 1) * 4
	if v := (r[i] >> s) & 0x0f; v < 15 {
		r[i] += 1 << s
	}
}

func (r cmRow) get(n uint64) byte {
	return (r[n/2] >> ((n & 1) * 4)) & 0x0f
}

// 所有计数减半
func (r cmRow) reset() {
	for i := range r {
		r[i] = (r[i] >> 1) & 0x77
	}
}

func (r cmRow) clear() {
	for i := range r {
		r[i] = 0
	}
}

// 找到一个不小于x的最小二次幂
func next2Power(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}

func newCmSketch(numCounters int64) *cmSketch {
	if numCounters <= 0 {
		panic("cmSketch: invalid numCounters")
	}
	// 至少两个计数，保证每行至少一个byte
	if numCounters < 2 {
		numCounters = 2
	}
	numCounters = int64(next2Power(uint64(numCounters)))
	sketch := &cmSketch{mask: uint64(numCounters) - 1}

	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < cmDepth; i++ {
		sketch.rows[i] = newCmRow(numCounters)
		sketch.seed[i] = source.Uint64()
	}
	return sketch
}

func (s *cmSketch) Increment(hash uint64) {
	for i := range s.rows {
		s.rows[i].increment((hash ^ s.seed[i]) & s.mask)
	}
}

// Estimate 取所有行中最小的计数
func (s *cmSketch) Estimate(hash uint64) int64 {
	min := byte(255)
	for i := range s.rows {
		if v := s.rows[i].get((hash ^ s.seed[i]) & s.mask); v < min {
			min = v
		}
	}
	return int64(min)
}

func (s *cmSketch) Reset() {
	for _, r := range s.rows {
		r.reset()
	}
}

func (s *cmSketch) Clear() {
	for _, r := range s.rows {
		r.clear()
	}
}
