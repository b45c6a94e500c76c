// ABOUTME: Byte ring buffer shared by the callback-driven backends
// ABOUTME: Thread-safe circular buffer between track writes and device reads
package output

import "sync"

// RingBuffer provides thread-safe circular buffer for PCM bytes
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	size     int
	count    int // Number of bytes currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in bytes)
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, capacity),
		size:   capacity,
	}
}

// Write adds bytes to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if free := rb.size - rb.count; n > free {
		n = free
	}

	first := copy(rb.buffer[rb.writePos:], p[:n])
	copy(rb.buffer, p[first:n])

	rb.writePos = (rb.writePos + n) % rb.size
	rb.count += n
	return n
}

// Read retrieves up to len(p) bytes from the ring buffer
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n > rb.count {
		n = rb.count
	}

	end := rb.readPos + n
	if end <= rb.size {
		copy(p, rb.buffer[rb.readPos:end])
	} else {
		first := copy(p, rb.buffer[rb.readPos:])
		copy(p[first:n], rb.buffer[:n-first])
	}

	rb.readPos = (rb.readPos + n) % rb.size
	rb.count -= n
	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Reset discards all buffered bytes
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
}
