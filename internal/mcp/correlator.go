package mcp

import (
	"sync"
	"time"
)

// pendingRequest is one outstanding call awaiting its response.
type pendingRequest struct {
	id        int64
	createdAt time.Time
	ch        chan *rpcMessage
}

// correlator owns the table of in-flight requests for one connection.
// It allocates monotonically increasing ids, matches responses to
// waiters by id, and is the single piece of shared mutable state between
// the send path and the receive loop. One mutex guards everything.
type correlator struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingRequest
	failErr error
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int64]*pendingRequest)}
}

// register allocates the next request id and parks a buffered channel
// for its response. After the table has failed, registration is refused
// with the terminal error.
func (c *correlator) register() (int64, <-chan *rpcMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failErr != nil {
		return 0, nil, c.failErr
	}

	c.nextID++
	id := c.nextID
	p := &pendingRequest{
		id:        id,
		createdAt: time.Now(),
		ch:        make(chan *rpcMessage, 1),
	}
	c.pending[id] = p
	return id, p.ch, nil
}

// resolve delivers a response to the waiter registered under its id and
// removes the entry. It reports false for unknown ids, which the caller
// logs as a protocol violation.
func (c *correlator) resolve(id int64, msg *rpcMessage) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.ch <- msg
	return true
}

// cancel removes an entry without delivering anything. Used on timeout
// and on send failure; a response arriving later is treated as unknown.
func (c *correlator) cancel(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAll rejects every outstanding call and poisons the table so that
// later registrations fail fast. Called when the connection dies.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingRequest)
	if c.failErr == nil {
		c.failErr = err
	}
	c.mu.Unlock()

	for _, p := range pending {
		close(p.ch)
	}
}

// terminal returns the error failAll recorded, or nil while the table
// is still live.
func (c *correlator) terminal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failErr
}

// size reports the number of in-flight requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
