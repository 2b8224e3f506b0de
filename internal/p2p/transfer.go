package p2p

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChunkSize is how much resource data one chunk message carries.
const ChunkSize = 64 * 1024

var ErrTransferCancelled = errors.New("resource transfer cancelled")

// Progress is a point-in-time view of one resource transfer. Remaining
// is estimated from observed throughput since the transfer began; it is
// zero until enough has been sent to estimate.
type Progress struct {
	TransferID string
	Name       string
	Bytes      int64
	Total      int64
	Fraction   float64
	Remaining  time.Duration
}

type transferEntry struct {
	id      string
	name    string
	total   int64
	bytes   int64
	started time.Time
	cancel  context.CancelFunc
	done    sync.Once
}

// Tracker publishes progress for in-flight resource transfers. Entries
// are released exactly once, on completion or cancellation, whichever
// comes first.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*transferEntry
	observe func(Progress)
}

// NewTracker returns a tracker publishing updates to observe (may be
// nil).
func NewTracker(observe func(Progress)) *Tracker {
	return &Tracker{entries: map[string]*transferEntry{}, observe: observe}
}

// Active returns the progress of all transfers still in flight.
func (t *Tracker) Active() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Progress, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, t.progressLocked(e))
	}
	return out
}

// Cancel aborts an in-flight transfer. Cancelling an unknown or already
// finished transfer is a no-op.
func (t *Tracker) Cancel(transferID string) {
	t.mu.Lock()
	e := t.entries[transferID]
	t.mu.Unlock()
	if e != nil {
		e.cancel()
	}
}

func (t *Tracker) start(name string, total int64, cancel context.CancelFunc) *transferEntry {
	e := &transferEntry{
		id:      uuid.NewString(),
		name:    name,
		total:   total,
		started: time.Now(),
		cancel:  cancel,
	}
	t.mu.Lock()
	t.entries[e.id] = e
	t.mu.Unlock()
	return e
}

func (t *Tracker) advance(e *transferEntry, n int64) {
	t.mu.Lock()
	e.bytes += n
	p := t.progressLocked(e)
	observe := t.observe
	t.mu.Unlock()
	if observe != nil {
		observe(p)
	}
}

// release removes the tracking entry. The sync.Once guards against the
// completion and cancellation paths racing to release the same entry.
func (t *Tracker) release(e *transferEntry) {
	e.done.Do(func() {
		t.mu.Lock()
		delete(t.entries, e.id)
		t.mu.Unlock()
	})
}

func (t *Tracker) progressLocked(e *transferEntry) Progress {
	p := Progress{TransferID: e.id, Name: e.name, Bytes: e.bytes, Total: e.total}
	if e.total > 0 {
		p.Fraction = float64(e.bytes) / float64(e.total)
	}
	if e.bytes > 0 && e.bytes < e.total {
		elapsed := time.Since(e.started)
		rate := float64(e.bytes) / elapsed.Seconds()
		if rate > 0 {
			p.Remaining = time.Duration(float64(e.total-e.bytes) / rate * float64(time.Second))
		}
	}
	return p
}

// SendResource streams r over the session in chunks, publishing
// progress through the tracker. Cancellation via the tracker aborts the
// stream; the tracking entry is released exactly once either way.
func (t *Tracker) SendResource(ctx context.Context, sess *Session, name string, r io.Reader, total int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e := t.start(name, total, cancel)
	defer t.release(e)

	buf := make([]byte, ChunkSize)
	var offset int64
	for {
		if ctx.Err() != nil {
			return ErrTransferCancelled
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			final := offset+int64(n) >= total
			chunk := ResourceChunk{
				TransferID: e.id,
				Name:       name,
				Offset:     offset,
				Total:      total,
				Data:       buf[:n],
				Final:      final,
			}
			if err := sess.Send(ctx, TypeResourceChunk, chunk); err != nil {
				if ctx.Err() != nil {
					return ErrTransferCancelled
				}
				return fmt.Errorf("failed to send resource chunk: %w", err)
			}
			offset += int64(n)
			t.advance(e, int64(n))
			if final {
				return nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if offset == total {
					return nil
				}
				// A reader shorter than the declared size never produces
				// a final chunk, stranding the receiver's partial buffer.
				return fmt.Errorf("resource ended short: sent %d of %d bytes", offset, total)
			}
			return fmt.Errorf("failed to read resource: %w", readErr)
		}
	}
}

// incomingResource accumulates chunks for one inbound transfer.
type incomingResource struct {
	name   string
	buf    bytes.Buffer
	offset int64
}

// Receiver reassembles inbound resource chunks. A resource surfaces
// only after its final chunk arrives intact; a transfer abandoned
// mid-flight never materializes.
type Receiver struct {
	mu       sync.Mutex
	inflight map[string]*incomingResource
}

func NewReceiver() *Receiver {
	return &Receiver{inflight: map[string]*incomingResource{}}
}

// Consume folds one chunk in. When the chunk completes a transfer,
// Consume returns the resource name and its full contents; otherwise
// name is empty.
func (r *Receiver) Consume(chunk ResourceChunk) (string, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.inflight[chunk.TransferID]
	if !ok {
		in = &incomingResource{name: chunk.Name}
		r.inflight[chunk.TransferID] = in
	}

	if chunk.Offset != in.offset {
		delete(r.inflight, chunk.TransferID)
		return "", nil, fmt.Errorf("resource chunk out of order: got offset %d, want %d", chunk.Offset, in.offset)
	}

	in.buf.Write(chunk.Data)
	in.offset += int64(len(chunk.Data))

	if !chunk.Final {
		return "", nil, nil
	}

	delete(r.inflight, chunk.TransferID)
	if in.offset != chunk.Total {
		return "", nil, fmt.Errorf("resource transfer truncated: got %d bytes, want %d", in.offset, chunk.Total)
	}
	return in.name, in.buf.Bytes(), nil
}

// Abandon drops an incomplete inbound transfer.
func (r *Receiver) Abandon(transferID string) {
	r.mu.Lock()
	delete(r.inflight, transferID)
	r.mu.Unlock()
}
