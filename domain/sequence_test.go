package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalSequence_Monotonic(t *testing.T) {
	var seq LocalSequence

	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Current())
}

func TestLocalSequence_IndependentInstances(t *testing.T) {
	var a, b LocalSequence

	a.Next()
	a.Next()

	assert.Equal(t, int64(0), b.Current())
	assert.Equal(t, int64(1), b.Next())
}

func TestLocalSequence_ConcurrentNext(t *testing.T) {
	var seq LocalSequence
	var wg sync.WaitGroup

	const workers = 8
	const perWorker = 1000
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seq.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), seq.Current())
}
