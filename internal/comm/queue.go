package comm

import (
	"sync"
	"time"
)

// AutosendInterval is how often QueueAutosend wakes on its own even if
// nobody pushed anything, draining whatever has accumulated (spec
// §4.5: "a 10ms timer bounds worst-case send latency for producers
// that don't want to block on a full queue").
const AutosendInterval = 10 * time.Millisecond

type queuedFrame struct {
	payload []byte
}

// SyncSendQueue is a multi-producer, single-consumer FIFO of pending
// outbound frames. Producers call Push and return immediately; a
// single autosend goroutine (QueueAutosend) drains the queue onto a
// Channel. Two separate mutexes split push from drain so a producer
// never blocks behind an in-flight network write (mirrors
// request_sync_send_queue.hpp's push_lock/pop_lock pair).
type SyncSendQueue struct {
	pushMu sync.Mutex
	pend   []queuedFrame

	drainMu sync.Mutex
	drain   []queuedFrame
}

func NewSyncSendQueue() *SyncSendQueue {
	return &SyncSendQueue{}
}

// Push enqueues payload for later send. Never blocks on I/O.
func (q *SyncSendQueue) Push(payload []byte) {
	q.pushMu.Lock()
	q.pend = append(q.pend, queuedFrame{payload: payload})
	q.pushMu.Unlock()
}

// swap moves everything pending into the drain slice and returns it,
// leaving pend empty for new producers to keep appending to while the
// drain slice is sent.
func (q *SyncSendQueue) swap() []queuedFrame {
	q.pushMu.Lock()
	if len(q.pend) == 0 {
		q.pushMu.Unlock()
		return nil
	}
	pend := q.pend
	q.pend = nil
	q.pushMu.Unlock()

	q.drainMu.Lock()
	q.drain = append(q.drain, pend...)
	out := q.drain
	q.drain = q.drain[:0]
	q.drainMu.Unlock()
	return out
}

// QueueAutosend drains a SyncSendQueue onto a Channel on a fixed
// interval (and whenever Wake is called), in its own goroutine. This
// is the Go stand-in for request_sync_send_queue's dedicated sender
// thread plus condition-variable wakeup.
type QueueAutosend struct {
	ch    *Channel
	queue *SyncSendQueue

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	onError func(error)
}

func NewQueueAutosend(ch *Channel, queue *SyncSendQueue, onError func(error)) *QueueAutosend {
	return &QueueAutosend{
		ch:      ch,
		queue:   queue,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onError: onError,
	}
}

// Wake nudges the autosend loop to drain immediately instead of
// waiting out the rest of the current interval.
func (a *QueueAutosend) Wake() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *QueueAutosend) Start() {
	a.wg.Add(1)
	go a.loop()
}

func (a *QueueAutosend) Stop() {
	close(a.done)
	a.wg.Wait()
}

func (a *QueueAutosend) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(AutosendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			a.drainOnce()
			return
		case <-a.wake:
			a.drainOnce()
		case <-ticker.C:
			a.drainOnce()
		}
	}
}

func (a *QueueAutosend) drainOnce() {
	frames := a.queue.swap()
	for _, f := range frames {
		if err := a.ch.SendFrame(f.payload); err != nil {
			if a.onError != nil {
				a.onError(err)
			}
			return
		}
	}
}
