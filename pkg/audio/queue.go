package audio

import "sync"

// Queue is an unbounded FIFO of PCM blobs with a partial-consumption cursor.
// Producers (sentence synthesis goroutines) enqueue variable-length blobs;
// the single consumer (the clocked track source) drains exact-size chunks.
// When the queue runs dry mid-read the tail of the result is zero-padded, so
// underflow renders as silence rather than an error. All methods serialize on
// one mutex; critical sections are small byte copies.
type Queue struct {
	mu     sync.Mutex
	blobs  [][]byte
	offset int // consumed bytes of blobs[0]
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a PCM blob. Empty blobs are ignored. The blob is retained
// by reference; callers must not mutate it after enqueueing.
func (q *Queue) Enqueue(blob []byte) {
	if len(blob) == 0 {
		return
	}
	q.mu.Lock()
	q.blobs = append(q.blobs, blob)
	q.mu.Unlock()
}

// Read returns exactly n bytes, filling from the partially consumed head blob
// first and then from the rest of the queue in order. If fewer than n bytes
// are available the remainder is zero bytes. Never blocks.
func (q *Queue) Read(n int) []byte {
	out := make([]byte, n)
	if n == 0 {
		return out
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	filled := 0
	for filled < n && len(q.blobs) > 0 {
		head := q.blobs[0]
		c := copy(out[filled:], head[q.offset:])
		filled += c
		q.offset += c
		if q.offset == len(head) {
			q.blobs = q.blobs[1:]
			q.offset = 0
		}
	}
	// Remaining bytes in out are already zero (silence).
	return out
}

// Clear discards the cursor and all queued blobs.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.blobs = nil
	q.offset = 0
	q.mu.Unlock()
}

// Available reports the exact number of readable bytes.
func (q *Queue) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, b := range q.blobs {
		total += len(b)
	}
	return total - q.offset
}
