package deduplication

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Guard suppresses concurrent duplicate relay attempts for the same
// (contract, poll, voter). On-chain hasVoted only reflects mined state, so
// two simultaneous requests for one voter would both pass validation and the
// second transaction would revert after burning gas.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard creates an empty in-flight tracker
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Key builds the tracking key for a vote attempt
func (g *Guard) Key(private bool, pollID uint64, voter string) string {
	kind := "public"
	if private {
		kind = "private"
	}
	return fmt.Sprintf("%s:%d:%s", kind, pollID, strings.ToLower(voter))
}

// Acquire marks the vote as in flight. Returns false if an identical vote is
// already being processed.
func (g *Guard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.inflight[key]; exists {
		log.Debugf("Duplicate in-flight vote suppressed: %s", key)
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// Release clears the in-flight mark once the attempt reached a terminal
// outcome, accepted or rejected
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// Len reports how many votes are currently in flight
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
