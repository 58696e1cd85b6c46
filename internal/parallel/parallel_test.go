package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 16} {
		counts := make([]int32, 1000)
		For(len(counts), workers, func(i int) {
			atomic.AddInt32(&counts[i], 1)
		})
		for i, c := range counts {
			assert.Equal(t, int32(1), c, "index %d with %d workers", i, workers)
		}
	}
}

func TestForZeroItems(t *testing.T) {
	called := false
	For(0, 4, func(int) { called = true })
	assert.False(t, called)
}

func TestForMoreWorkersThanItems(t *testing.T) {
	var total int32
	For(3, 64, func(i int) { atomic.AddInt32(&total, int32(i)) })
	assert.Equal(t, int32(3), total)
}
