package audio

import (
	"bytes"
	"sync"
	"testing"
)

func TestQueueReadReturnsEnqueuedBytes(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	blob := []byte{1, 2, 3, 4, 5, 6}
	q.Enqueue(blob)

	got := q.Read(len(blob))
	if !bytes.Equal(got, blob) {
		t.Errorf("Read(%d) = %v, want %v", len(blob), got, blob)
	}
	if q.Available() != 0 {
		t.Errorf("Available() = %d after full read, want 0", q.Available())
	}
}

func TestQueueConcatenationAcrossBlobs(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Enqueue([]byte{1, 2, 3})
	q.Enqueue([]byte{4, 5})
	q.Enqueue([]byte{6, 7, 8, 9})

	// Drain in chunk sizes that straddle blob boundaries.
	var got []byte
	got = append(got, q.Read(4)...)
	got = append(got, q.Read(2)...)
	got = append(got, q.Read(3)...)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !bytes.Equal(got, want) {
		t.Errorf("concatenated reads = %v, want %v", got, want)
	}
}

func TestQueueZeroPadsOnUnderflow(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Enqueue([]byte{9, 9})

	got := q.Read(5)
	want := []byte{9, 9, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("Read(5) = %v, want %v", got, want)
	}
}

func TestQueueEmptyRead(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	if got := q.Read(0); len(got) != 0 {
		t.Errorf("Read(0) returned %d bytes, want 0", len(got))
	}
	got := q.Read(4)
	if !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("Read(4) on empty queue = %v, want all zeros", got)
	}
}

func TestQueueEnqueueEmptyIsNoop(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Enqueue(nil)
	q.Enqueue([]byte{})
	if q.Available() != 0 {
		t.Errorf("Available() = %d after empty enqueues, want 0", q.Available())
	}
}

func TestQueueClear(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Enqueue([]byte{1, 2, 3, 4})
	q.Read(1) // advance the cursor mid-blob
	q.Clear()

	if q.Available() != 0 {
		t.Errorf("Available() = %d after Clear, want 0", q.Available())
	}
	got := q.Read(2)
	if !bytes.Equal(got, []byte{0, 0}) {
		t.Errorf("Read after Clear = %v, want silence", got)
	}
}

func TestQueueAvailableAccountsForCursor(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Enqueue(make([]byte, 10))
	q.Enqueue(make([]byte, 5))
	q.Read(3)

	if got := q.Available(); got != 12 {
		t.Errorf("Available() = %d, want 12", got)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	const producers = 8
	const blobsEach = 100
	const blobLen = 64
	blob := bytes.Repeat([]byte{0xFF}, blobLen)

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range blobsEach {
				q.Enqueue(blob)
			}
		}()
	}

	// Single consumer draining concurrently. Marker bytes distinguish real
	// data from underflow padding while producers are still running.
	seen := 0
	want := producers * blobsEach * blobLen
	for seen < want {
		for _, b := range q.Read(128) {
			if b == 0xFF {
				seen++
			}
		}
	}
	wg.Wait()

	if q.Available() != 0 {
		t.Errorf("Available() = %d after draining everything, want 0", q.Available())
	}
}
