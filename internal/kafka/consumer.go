package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message was processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	offsets *offsetTracker
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, offsets: newOffsetTracker()}
}

// laneFor routes every message of one key to the same worker so per-key
// ordering survives the fan-out.
func laneFor(key []byte, workers int) int {
	if workers <= 1 {
		return 0
	}
	return int(xxhash.Sum64(key) % uint64(workers))
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					log.Printf("worker %d: offset %d: %v", id, m.Offset, err)
				}
			}
		}(i, lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}()

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// keep shutdown quiet
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.offsets.dispatched(m)
		select {
		case lanes[laneFor(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle retries a failing message a few times before giving up on it, so a
// poison message cannot stall its lane forever.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	if err != nil {
		log.Printf("dropping offset %d after retries: %v", m.Offset, err)
	}
	return c.offsets.finished(m, func(last kafka.Message) error {
		return c.r.CommitMessages(ctx, last)
	})
}

// offsetTracker lets lanes finish out of order while commits only move a
// partition's offset past messages that were all handled.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partition
}

type partition struct {
	inflight  []int64 // fetch order, ascending
	done      map[int64]kafka.Message
	committed int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[int]*partition)}
}

func (t *offsetTracker) part(n int) *partition {
	p, ok := t.parts[n]
	if !ok {
		p = &partition{done: make(map[int64]kafka.Message), committed: -1}
		t.parts[n] = p
	}
	return p
}

func (t *offsetTracker) dispatched(m kafka.Message) {
	t.mu.Lock()
	p := t.part(m.Partition)
	p.inflight = append(p.inflight, m.Offset)
	t.mu.Unlock()
}

// finished marks m handled and calls commit with the highest message below
// which every offset of the partition is handled, if that moved forward.
// commit runs under the lock so commits of one partition never go backwards.
func (t *offsetTracker) finished(m kafka.Message, commit func(kafka.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.part(m.Partition)
	p.done[m.Offset] = m

	var (
		last kafka.Message
		ok   bool
	)
	for len(p.inflight) > 0 {
		head, found := p.done[p.inflight[0]]
		if !found {
			break
		}
		delete(p.done, p.inflight[0])
		p.inflight = p.inflight[1:]
		last, ok = head, true
	}
	if !ok || last.Offset <= p.committed {
		return nil
	}
	if err := commit(last); err != nil {
		return err
	}
	p.committed = last.Offset
	return nil
}
