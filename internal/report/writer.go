package report

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// writerQueueSize bounds the number of reports waiting for a durable
	// write. The coordinator drops on overflow rather than blocking.
	writerQueueSize = 256

	// writeTimeout bounds a single durable write.
	writeTimeout = 5 * time.Second
)

// Writer decouples report persistence from the coordinator's serialized
// state-mutation path. Record never blocks: reports are queued to a single
// background goroutine that performs the store writes. Delivery to the store
// is best-effort; the coordinator's in-memory counters remain authoritative
// for the ban threshold.
type Writer struct {
	store Store
	ch    chan Report
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewWriter starts a Writer draining into the given store.
func NewWriter(store Store) *Writer {
	w := &Writer{
		store: store,
		ch:    make(chan Report, writerQueueSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record queues a report for persistence. If the queue is full the report
// is dropped with a diagnostic.
func (w *Writer) Record(r Report) {
	select {
	case w.ch <- r:
	default:
		log.Printf("[report] writer queue full, dropping report against %s", r.ReportedID)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case r := <-w.ch:
			w.write(r)
		case <-w.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case r := <-w.ch:
					w.write(r)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(r Report) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.Create(ctx, &r); err != nil {
		log.Printf("[report] persist report against %s: %v", r.ReportedID, err)
	}
}

// Close stops the writer after draining queued reports.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}
