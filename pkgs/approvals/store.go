package approvals

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/metrics"
)

// Store composes a primary (remote) backend with a local fallback. Reads try
// the primary first and degrade to the fallback; a permission failure on the
// primary demotes the store to local-only mode for the remainder of the
// process so a backend known to be failing is not retried per request.
//
// Store operations never surface errors to callers: failures degrade to the
// other backend, or to nil/empty results, and are logged. Absence of an
// approval only means the caller must supply or request one, so degrading
// never fails open.
type Store struct {
	primary  Backend // may be nil, then the store is local-only from the start
	fallback Backend

	demoted atomic.Bool
	now     func() time.Time
}

// NewStore composes the primary and fallback backends. primary may be nil.
func NewStore(primary, fallback Backend) *Store {
	return &Store{
		primary:  primary,
		fallback: fallback,
		now:      time.Now,
	}
}

// usePrimary reports whether the primary backend is still in play
func (s *Store) usePrimary() bool {
	return s.primary != nil && !s.demoted.Load()
}

// demote switches the store to local-only mode, once per process
func (s *Store) demote(err error) {
	if s.demoted.CompareAndSwap(false, true) {
		metrics.ApprovalBackendDemotions.Inc()
		log.WithError(err).Warnf("Approval backend %s demoted, using %s only from now on",
			s.primary.Name(), s.fallback.Name())
	}
}

// Get returns the current approval for (pollID, voter), or nil if absent or
// expired
func (s *Store) Get(ctx context.Context, pollID uint64, voter string) *Approval {
	var approval *Approval

	if s.usePrimary() {
		found, err := s.primary.Get(ctx, pollID, voter)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.demote(err)
			} else {
				log.WithError(err).Warnf("Approval lookup failed on %s, trying %s",
					s.primary.Name(), s.fallback.Name())
			}
		} else {
			approval = found
		}
	}

	if approval == nil {
		found, err := s.fallback.Get(ctx, pollID, voter)
		if err != nil {
			log.WithError(err).Warnf("Approval lookup failed on %s", s.fallback.Name())
			return nil
		}
		approval = found
	}

	if approval == nil || approval.Expired(s.now()) {
		return nil
	}
	return approval
}

// Put upserts an approval. The fallback is always written so a later demotion
// does not lose credentials; the primary is written while it is still in play.
func (s *Store) Put(ctx context.Context, approval *Approval) {
	approval.Voter = NormalizeAddress(approval.Voter)
	if approval.CreatedAt == 0 {
		approval.CreatedAt = s.now().Unix()
	}

	if err := s.fallback.Put(ctx, approval); err != nil {
		log.WithError(err).Warnf("Failed to store approval on %s", s.fallback.Name())
	}

	if s.usePrimary() {
		if err := s.primary.Put(ctx, approval); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.demote(err)
			} else {
				log.WithError(err).Warnf("Failed to store approval on %s", s.primary.Name())
			}
		}
	}
}

// ListAddresses returns the union of the whitelisted address sets of every
// configured backend, deduplicated case-insensitively. Union, not
// intersection: eligibility is decided by signature validity, the list is
// advisory, so an address known to either backend is reported.
func (s *Store) ListAddresses(ctx context.Context, pollID uint64) []string {
	seen := make(map[string]struct{})

	collect := func(b Backend) {
		addrs, err := b.ListAddresses(ctx, pollID)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) && b == s.primary {
				s.demote(err)
			} else {
				log.WithError(err).Warnf("Failed to list whitelist addresses on %s", b.Name())
			}
			return
		}
		for _, addr := range addrs {
			seen[NormalizeAddress(addr)] = struct{}{}
		}
	}

	collect(s.fallback)
	if s.usePrimary() {
		collect(s.primary)
	}

	union := make([]string, 0, len(seen))
	for addr := range seen {
		union = append(union, addr)
	}
	sort.Strings(union)
	return union
}
