package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// PollSnapshot is a read-only projection of on-chain poll state, fetched per
// request. endTime and voterCount are mutated concurrently by other voters,
// so a snapshot must not be reused across validation passes.
type PollSnapshot struct {
	ID              uint64
	Title           string
	Creator         common.Address
	EndTime         uint64
	CandidateCount  uint16
	VoterCount      uint64
	MaxVoters       uint64
	WhitelistSigner common.Address // private polls only
	Private         bool
}

// Candidate is a single poll option with its running tally
type Candidate struct {
	Name      string
	VoteCount uint64
}

// FeeData holds live network fee suggestions. GasTipCap is nil on chains
// without EIP-1559 support.
type FeeData struct {
	GasPrice  *big.Int
	GasTipCap *big.Int
}

// FormatEther renders a wei amount as a decimal ether string with trailing
// zeros trimmed, for responses and logs
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// VoteCall describes a metaVote contract call before it is packed and signed
type VoteCall struct {
	Private            bool
	PollID             *big.Int
	CandidateID        uint16
	Voter              common.Address
	Expiry             *big.Int // private only
	WhitelistSignature []byte   // private only
	VoteSignature      []byte
}
