package approvals

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/signing"
)

// DefaultExpiry is the lifetime of issued approvals
const DefaultExpiry = 7 * 24 * time.Hour

// Issuer signs fresh whitelist approvals with a configured key and records
// them in the store. Used to synthesize the poll creator's implicit
// eligibility; the contract's own whitelist check stays authoritative, an
// issued approval whose signer is not the poll's whitelistSigner will still
// be rejected downstream.
type Issuer struct {
	key    *ecdsa.PrivateKey
	codec  *signing.Codec
	store  *Store
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer from a hex-encoded private key
func NewIssuer(privateKeyHex string, codec *signing.Codec, store *Store, expiry time.Duration) (*Issuer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist signer key: %w", err)
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	return &Issuer{
		key:    key,
		codec:  codec,
		store:  store,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// Address returns the issuer's signing address
func (i *Issuer) Address() common.Address {
	return crypto.PubkeyToAddress(i.key.PublicKey)
}

// Issue signs an approval for the voter and stores it
func (i *Issuer) Issue(ctx context.Context, pollID uint64, voter common.Address) (*Approval, error) {
	expiry := i.now().Add(i.expiry).Unix()

	sig, err := i.codec.SignApproval(i.key, new(big.Int).SetUint64(pollID), voter, big.NewInt(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to sign approval: %w", err)
	}

	approval := &Approval{
		PollID:    pollID,
		Voter:     NormalizeAddress(voter.Hex()),
		Expiry:    expiry,
		Signature: hexutil.Encode(sig),
		Signer:    NormalizeAddress(i.Address().Hex()),
		CreatedAt: i.now().Unix(),
	}
	i.store.Put(ctx, approval)

	log.WithFields(log.Fields{
		"poll_id": pollID,
		"voter":   approval.Voter,
		"expiry":  expiry,
	}).Info("Issued whitelist approval")

	return approval, nil
}

// IssueBatch signs approvals for a set of voters, returning the per-voter
// results keyed by lower-cased address
func (i *Issuer) IssueBatch(ctx context.Context, pollID uint64, voters []common.Address) (map[string]*Approval, error) {
	results := make(map[string]*Approval, len(voters))
	for _, voter := range voters {
		approval, err := i.Issue(ctx, pollID, voter)
		if err != nil {
			return results, fmt.Errorf("failed to issue approval for %s: %w", voter.Hex(), err)
		}
		results[approval.Voter] = approval
	}
	return results, nil
}
