// ABOUTME: Mutex-guarded ring of audio chunks with a fixed capacity
// ABOUTME: Never grows, never drops; callers retry when full or empty
package queue

import (
	"sync"

	"github.com/mch25/pcmstream/pkg/audio"
)

// DefaultCapacity is the number of chunks buffered per session
const DefaultCapacity = 30

// Queue is a bounded FIFO safe for one producer and one consumer
type Queue struct {
	mu       sync.Mutex
	items    []audio.Chunk
	readPos  int
	writePos int
	count    int
}

// New creates a queue holding at most capacity chunks
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items: make([]audio.Chunk, capacity),
	}
}

// TryEnqueue appends a chunk if there is room
func (q *Queue) TryEnqueue(c audio.Chunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.items) {
		return false
	}

	q.items[q.writePos] = c
	q.writePos = (q.writePos + 1) % len(q.items)
	q.count++
	return true
}

// TryDequeue removes the oldest chunk
func (q *Queue) TryDequeue() (audio.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}

	c := q.items[q.readPos]
	q.items[q.readPos] = nil
	q.readPos = (q.readPos + 1) % len(q.items)
	q.count--
	return c, true
}

// Len returns the number of queued chunks
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the capacity
func (q *Queue) Cap() int {
	return len(q.items)
}

// Clear drops every queued chunk
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		q.items[i] = nil
	}
	q.readPos = 0
	q.writePos = 0
	q.count = 0
}
