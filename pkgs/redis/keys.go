package redis

import (
	"fmt"
	"strings"
)

// KeyBuilder generates namespaced Redis keys for the whitelist approval
// store. The namespace isolates deployments sharing one Redis instance,
// typically "relayer:<chainId>".
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a KeyBuilder. An empty namespace yields bare keys for
// compatibility with single-tenant deployments.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// ForChain builds the conventional per-chain namespace
func ForChain(chainID int64) *KeyBuilder {
	return NewKeyBuilder(fmt.Sprintf("relayer:%d", chainID))
}

func (k *KeyBuilder) prefix(key string) string {
	if k.namespace == "" {
		return key
	}
	return k.namespace + ":" + key
}

// Approval returns the hash key holding a single approval,
// keyed by poll and lowercased voter address
func (k *KeyBuilder) Approval(pollID uint64, voter string) string {
	return k.prefix(fmt.Sprintf("whitelist:approval:%d:%s", pollID, strings.ToLower(voter)))
}

// AddressSet returns the set key recording every whitelisted address of a poll
func (k *KeyBuilder) AddressSet(pollID uint64) string {
	return k.prefix(fmt.Sprintf("whitelist:addresses:%d", pollID))
}
