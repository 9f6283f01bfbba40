package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	const n = 2000
	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				ids <- NextID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestBusinessNumbers(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateTransactionNo(), "TXN"))
	assert.True(t, strings.HasPrefix(GenerateReceipt(), "RCP"))
	assert.Len(t, GenerateReceipt(), 3+14+8)
}
