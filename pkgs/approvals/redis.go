package approvals

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	keys "github.com/AkshayPatel-02/vote-relayer/pkgs/redis"
)

// RedisBackend stores approvals in Redis, keyed by (pollId, lower(voter)).
// Each approval is a hash; the per-poll address set is maintained alongside
// for ListAddresses.
type RedisBackend struct {
	client *redis.Client
	keys   *keys.KeyBuilder
}

// NewRedisBackend creates a Redis-backed approval store with bare key names
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return NewNamespacedRedisBackend(client, keys.NewKeyBuilder(""))
}

// NewNamespacedRedisBackend creates a Redis-backed approval store whose keys
// are scoped by the builder's namespace
func NewNamespacedRedisBackend(client *redis.Client, kb *keys.KeyBuilder) *RedisBackend {
	return &RedisBackend{client: client, keys: kb}
}

func (b *RedisBackend) Name() string { return "redis" }

// Get returns the stored approval or nil if absent
func (b *RedisBackend) Get(ctx context.Context, pollID uint64, voter string) (*Approval, error) {
	data, err := b.client.HGetAll(ctx, b.keys.Approval(pollID, NormalizeAddress(voter))).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	approval := &Approval{
		PollID:    pollID,
		Voter:     NormalizeAddress(voter),
		Signature: data["signature"],
		Signer:    data["signer"],
	}
	if v, ok := data["expiry"]; ok {
		approval.Expiry, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["created_at"]; ok {
		approval.CreatedAt, _ = strconv.ParseInt(v, 10, 64)
	}

	return approval, nil
}

// Put upserts an approval and records the voter in the poll's address set
func (b *RedisBackend) Put(ctx context.Context, approval *Approval) error {
	voter := NormalizeAddress(approval.Voter)

	data := map[string]interface{}{
		"signature":  approval.Signature,
		"expiry":     approval.Expiry,
		"signer":     approval.Signer,
		"created_at": approval.CreatedAt,
	}

	pipe := b.client.Pipeline()
	pipe.HSet(ctx, b.keys.Approval(approval.PollID, voter), data)
	if ttl := time.Until(time.Unix(approval.Expiry, 0)); ttl > 0 {
		pipe.Expire(ctx, b.keys.Approval(approval.PollID, voter), ttl)
	}
	pipe.SAdd(ctx, b.keys.AddressSet(approval.PollID), voter)

	if _, err := pipe.Exec(ctx); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// ListAddresses returns every address recorded for the poll
func (b *RedisBackend) ListAddresses(ctx context.Context, pollID uint64) ([]string, error) {
	addrs, err := b.client.SMembers(ctx, b.keys.AddressSet(pollID)).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return addrs, nil
}

// wrapRedisErr maps Redis authorization failures onto ErrPermissionDenied so
// the composing store can demote itself
func wrapRedisErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "NOPERM") ||
		strings.Contains(msg, "WRONGPASS") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	}
	return err
}
