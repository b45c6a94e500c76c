// ABOUTME: Tests for the bounded chunk queue
// ABOUTME: Covers FIFO order, capacity limits and concurrent access
package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mch25/pcmstream/pkg/audio"
)

func chunkOf(n byte) audio.Chunk {
	return audio.Chunk{n, 0}
}

func TestNewDefaults(t *testing.T) {
	if q := New(0); q.Cap() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, q.Cap())
	}
	if q := New(5); q.Cap() != 5 {
		t.Errorf("expected capacity 5, got %d", q.Cap())
	}
}

func TestFIFO(t *testing.T) {
	q := New(4)

	for i := byte(0); i < 4; i++ {
		if !q.TryEnqueue(chunkOf(i)) {
			t.Fatalf("enqueue %d failed", i)
		}
	}

	for i := byte(0); i < 4; i++ {
		c, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if c[0] != i {
			t.Errorf("expected chunk %d, got %d", i, c[0])
		}
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("expected empty queue")
	}
}

func TestCapacity(t *testing.T) {
	q := New(3)

	for i := byte(0); i < 3; i++ {
		q.TryEnqueue(chunkOf(i))
	}

	if q.TryEnqueue(chunkOf(9)) {
		t.Error("enqueue should fail at capacity")
	}
	if q.Len() != 3 {
		t.Errorf("expected len 3, got %d", q.Len())
	}

	// Space frees after a dequeue and wrap-around keeps order
	q.TryDequeue()
	if !q.TryEnqueue(chunkOf(3)) {
		t.Fatal("enqueue should succeed after dequeue")
	}
	for want := byte(1); want <= 3; want++ {
		c, _ := q.TryDequeue()
		if c[0] != want {
			t.Errorf("expected %d, got %d", want, c[0])
		}
	}
}

func TestClear(t *testing.T) {
	q := New(3)
	q.TryEnqueue(chunkOf(1))
	q.TryEnqueue(chunkOf(2))

	q.Clear()

	if q.Len() != 0 {
		t.Errorf("expected empty queue after Clear, got %d", q.Len())
	}
	if _, ok := q.TryDequeue(); ok {
		t.Error("expected no chunk after Clear")
	}

	// Still usable
	q.TryEnqueue(chunkOf(7))
	if c, ok := q.TryDequeue(); !ok || c[0] != 7 {
		t.Error("queue unusable after Clear")
	}
}

func TestConcurrentNeverExceedsCapacity(t *testing.T) {
	const capacity = 8
	const total = 5000

	q := New(capacity)
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if q.TryEnqueue(audio.Chunk{byte(i), byte(i >> 8)}) {
				i++
			}
			if n := int32(q.Len()); n > maxSeen.Load() {
				maxSeen.Store(n)
			}
		}
	}()

	received := make([]int, 0, total)
	go func() {
		defer wg.Done()
		for len(received) < total {
			c, ok := q.TryDequeue()
			if !ok {
				continue
			}
			received = append(received, int(c[0])|int(c[1])<<8)
		}
	}()

	wg.Wait()

	if maxSeen.Load() > capacity {
		t.Errorf("queue exceeded capacity: saw %d", maxSeen.Load())
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}
