package util

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoWorkList_Order(t *testing.T) {
	out := DoWorkList([]int{3, 1, 2}, 0, func(n int) int {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	})
	assert.Equal(t, []int{30, 10, 20}, out)
}

func TestDoWorkList_Limit(t *testing.T) {
	var running, peak int32
	DoWorkList(make([]struct{}, 8), 2, func(struct{}) bool {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return true
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDoWorkList_Empty(t *testing.T) {
	assert.Empty(t, DoWorkList([]string{}, 4, func(s string) string { return s }))
}
