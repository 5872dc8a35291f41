package submitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// NonceSource fetches the account's next nonce from the node, including
// transactions still in the mempool
type NonceSource interface {
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
}

// NonceManager hands out strictly increasing nonces for a single relayer
// account. All allocation goes through one mutex so concurrent submissions
// can never receive the same nonce. The first reservation seeds the counter
// from the node's pending nonce.
//
// Reservations are tracked until completed or released: the node's pending
// nonce cannot see a reservation that has not been broadcast yet, so every
// re-seed clamps to one past the highest outstanding reservation. Without the
// clamp, a resync racing a held reservation would hand the same nonce to two
// in-flight requests.
type NonceManager struct {
	mu          sync.Mutex
	source      NonceSource
	account     common.Address
	next        uint64
	seeded      bool
	outstanding map[uint64]struct{}
}

// NewNonceManager creates a manager for the relayer account. The counter is
// seeded lazily on first use.
func NewNonceManager(source NonceSource, account common.Address) *NonceManager {
	return &NonceManager{
		source:      source,
		account:     account,
		outstanding: make(map[uint64]struct{}),
	}
}

// Reserve allocates the next nonce. The reservation stands until the caller
// broadcasts a transaction with it and calls Complete, or returns it via
// Release.
func (m *NonceManager) Reserve(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		if err := m.seedLocked(ctx); err != nil {
			return 0, err
		}
	}

	nonce := m.next
	m.next++
	m.outstanding[nonce] = struct{}{}
	return nonce, nil
}

// Complete marks a reservation as broadcast. The nonce is now visible in the
// node's pending state, so re-seeds no longer need to account for it.
func (m *NonceManager) Complete(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outstanding, nonce)
}

// Release returns an unused reservation. Only the most recent allocation can
// be rolled back; releasing anything older would re-issue a nonce that a
// later reservation may already hold, so those only clear the tracking entry
// and the counter resyncs on the next Resync instead.
func (m *NonceManager) Release(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.outstanding, nonce)
	if m.seeded && m.next == nonce+1 {
		m.next = nonce
		return
	}
	log.Debugf("Nonce %d released out of order, keeping counter at %d", nonce, m.next)
}

// Resync re-seeds the counter from the node. Called after broadcast failures
// that leave the mempool state uncertain. Reservations still held by other
// requests stay reserved: the re-seed never moves the counter back over them.
func (m *NonceManager) Resync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seedLocked(ctx)
}

// seedLocked fetches the pending nonce and clamps it past every outstanding
// reservation. Callers hold m.mu.
func (m *NonceManager) seedLocked(ctx context.Context) error {
	pending, err := m.source.PendingNonce(ctx, m.account)
	if err != nil {
		m.seeded = false
		return fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	next := pending
	for held := range m.outstanding {
		if held+1 > next {
			next = held + 1
		}
	}
	if next != pending {
		log.Debugf("Nonce re-seed clamped from %d to %d over outstanding reservations", pending, next)
	}

	m.next = next
	m.seeded = true
	return nil
}
