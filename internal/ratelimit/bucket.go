// Package ratelimit 令牌桶限流，用於限制單一連線的訊息頻率
package ratelimit

import (
	"sync"
	"time"
)

// Bucket 令牌桶
//
// 容量 burst，每秒補充 rate 個令牌；每則訊息消耗一個。
// 令牌以浮點數累積，低速率時不會因取整而永遠補不到。
type Bucket struct {
	mu       sync.Mutex
	burst    float64
	rate     float64
	tokens   float64
	lastFill time.Time
	now      func() time.Time
}

// Option Bucket 選項
type Option func(*Bucket)

// WithClock 替換時間來源（測試用）
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		b.now = now
	}
}

// NewBucket 建立一個滿的令牌桶；burst 或 rate 不大於 0 時不做限制
func NewBucket(burst int, rate float64, opts ...Option) *Bucket {
	b := &Bucket{
		burst: float64(burst),
		rate:  rate,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tokens = b.burst
	b.lastFill = b.now()
	return b
}

// Allow 嘗試消耗一個令牌
func (b *Bucket) Allow() bool {
	if b == nil || b.burst <= 0 || b.rate <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Tokens 目前剩餘令牌數（含至今應補充的部分），不消耗令牌
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// refill 依經過時間補充令牌，呼叫端需持有 mu
func (b *Bucket) refill() {
	now := b.now()
	if elapsed := now.Sub(b.lastFill); elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed.Seconds()*b.rate)
		b.lastFill = now
	}
}
