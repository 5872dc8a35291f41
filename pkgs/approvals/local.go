package approvals

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LocalBackend is an in-process approval cache used as the fallback when the
// remote store is unavailable or demoted. Approvals live in a bounded LRU;
// per-poll address sets are kept separately so ListAddresses survives
// approval eviction.
type LocalBackend struct {
	cache *lru.Cache[string, *Approval]

	mu        sync.RWMutex
	addresses map[uint64]map[string]struct{}
}

// NewLocalBackend creates a local backend with a bounded approval cache
func NewLocalBackend(cacheSize int) (*LocalBackend, error) {
	cache, err := lru.New[string, *Approval](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &LocalBackend{
		cache:     cache,
		addresses: make(map[uint64]map[string]struct{}),
	}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func localKey(pollID uint64, voter string) string {
	return fmt.Sprintf("%d:%s", pollID, NormalizeAddress(voter))
}

func (b *LocalBackend) Get(_ context.Context, pollID uint64, voter string) (*Approval, error) {
	if approval, ok := b.cache.Get(localKey(pollID, voter)); ok {
		return approval, nil
	}
	return nil, nil
}

func (b *LocalBackend) Put(_ context.Context, approval *Approval) error {
	voter := NormalizeAddress(approval.Voter)
	b.cache.Add(localKey(approval.PollID, voter), approval)

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.addresses[approval.PollID]
	if !ok {
		set = make(map[string]struct{})
		b.addresses[approval.PollID] = set
	}
	set[voter] = struct{}{}

	return nil
}

func (b *LocalBackend) ListAddresses(_ context.Context, pollID uint64) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.addresses[pollID]
	addrs := make([]string, 0, len(set))
	for addr := range set {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
