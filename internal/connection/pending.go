package connection

import (
	"github.com/sadnxai/chatlink/internal/protocol"
)

type reply struct {
	msg protocol.InboundMessage
	err error
}

// pendingRequest is one SendAndWait awaiting its correlated reply.
// done is buffered so completion never blocks the manager goroutine.
type pendingRequest struct {
	done  chan reply
	timer timer
}

// complete delivers r and stops the timeout. Callers remove the entry first,
// which is what makes completion happen at most once.
func (p *pendingRequest) complete(r reply) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- r
}

// pendingTable maps outbound message ids to waiting requests.
// Owned by the manager goroutine.
type pendingTable struct {
	requests map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{requests: make(map[string]*pendingRequest)}
}

func (t *pendingTable) add(id string, req *pendingRequest) bool {
	if _, exists := t.requests[id]; exists {
		return false
	}
	t.requests[id] = req
	return true
}

// take removes and returns the request for id.
func (t *pendingTable) take(id string) (*pendingRequest, bool) {
	req, ok := t.requests[id]
	if ok {
		delete(t.requests, id)
	}
	return req, ok
}

// takeIf removes the entry for id only if it is req.
func (t *pendingTable) takeIf(id string, req *pendingRequest) bool {
	if t.requests[id] != req {
		return false
	}
	delete(t.requests, id)
	return true
}

// rejectAll completes every request with err and empties the table.
func (t *pendingTable) rejectAll(err error) int {
	n := len(t.requests)
	for id, req := range t.requests {
		delete(t.requests, id)
		req.complete(reply{err: err})
	}
	return n
}

func (t *pendingTable) len() int {
	return len(t.requests)
}
