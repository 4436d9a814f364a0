package gatt

import "sync"

// notifier delivers observer callbacks on a dedicated goroutine, in
// submission order. A single queue gives FIFO delivery per entity and
// keeps the run loop free: a callback that calls back into the API can
// never deadlock the loop that feeds it.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	fns    []func()
	closed bool
}

func newNotifier() *notifier {
	n := &notifier{}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) push(f func()) {
	n.mu.Lock()
	if !n.closed {
		n.fns = append(n.fns, f)
		n.cond.Signal()
	}
	n.mu.Unlock()
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		for len(n.fns) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.fns) == 0 && n.closed {
			n.mu.Unlock()
			return
		}
		batch := n.fns
		n.fns = nil
		n.mu.Unlock()

		for _, f := range batch {
			f()
		}
	}
}

// stop drains nothing further; queued callbacks still run before the
// goroutine exits.
func (n *notifier) stop() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
}
