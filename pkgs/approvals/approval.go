package approvals

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Approval is a time-bounded whitelist credential issued by a poll's
// designated whitelist signer. Possession of a valid approval proves
// eligibility to vote in a private poll.
type Approval struct {
	PollID    uint64 `json:"pollId"`
	Voter     string `json:"address"` // lower-cased hex
	Expiry    int64  `json:"expiry"`  // unix seconds
	Signature string `json:"signature"`
	Signer    string `json:"createdBy,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Expired reports whether the approval is no longer valid at the given time.
// An approval whose expiry equals now is already expired.
func (a *Approval) Expired(now time.Time) bool {
	return a.Expiry <= now.Unix()
}

// NormalizeAddress lower-cases a hex address for use as a store key
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ErrPermissionDenied marks a backend failure that must demote the store to
// its fallback backend for the remainder of the process
var ErrPermissionDenied = errors.New("approval backend: permission denied")

// Backend is a single approval storage backend. Implementations return nil
// (not an error) for absent entries.
type Backend interface {
	Name() string
	Get(ctx context.Context, pollID uint64, voter string) (*Approval, error)
	Put(ctx context.Context, approval *Approval) error
	ListAddresses(ctx context.Context, pollID uint64) ([]string, error)
}
