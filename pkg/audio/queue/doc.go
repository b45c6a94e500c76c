// ABOUTME: Bounded chunk queue package
// ABOUTME: The hand-off point between the stream reader and the playback writer
// Package queue provides a capacity-limited FIFO of audio chunks.
//
// Both operations are non-blocking: a producer that finds the queue full
// decides for itself how long to wait before retrying, so it can observe
// cancellation between attempts.
//
// Example:
//
//	q := queue.New(30)
//	for !q.TryEnqueue(chunk) {
//	    time.Sleep(20 * time.Millisecond)
//	}
//	chunk, ok := q.TryDequeue()
package queue
