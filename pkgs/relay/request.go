package relay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// VoteRequest is an inbound relay request. Pointer fields distinguish absent
// from zero so structural validation can report every missing field.
type VoteRequest struct {
	PollID      *uint64 `json:"pollId"`
	CandidateID *uint32 `json:"candidateId"`
	Voter       string  `json:"voter"`

	// Public polls
	Signature string `json:"signature"`

	// Private polls
	Expiry             *int64 `json:"expiry"`
	WhitelistSignature string `json:"whitelistSignature"`
	VoteSignature      string `json:"voteSignature"`

	Private bool `json:"-"`
}

// voteSig returns the vote signature field for the request's contract kind
func (r *VoteRequest) voteSig() string {
	if r.Private {
		return r.VoteSignature
	}
	return r.Signature
}

// structuralErrors collects every missing or malformed field. An empty result
// means the request is well-formed.
func (r *VoteRequest) structuralErrors() []string {
	var findings []string

	if r.PollID == nil {
		findings = append(findings, "pollId is missing")
	}

	if r.CandidateID == nil {
		findings = append(findings, "candidateId is missing")
	} else if *r.CandidateID > 65535 {
		findings = append(findings, fmt.Sprintf("candidateId %d exceeds uint16 range", *r.CandidateID))
	}

	if r.Voter == "" {
		findings = append(findings, "voter is missing")
	} else if !common.IsHexAddress(r.Voter) {
		findings = append(findings, "voter must be a valid Ethereum address")
	}

	if r.Private {
		// An attached approval is optional (the store or the creator
		// self-sign path can supply one), but when attached it must be
		// complete
		if r.WhitelistSignature != "" || r.Expiry != nil {
			if r.Expiry == nil {
				findings = append(findings, "expiry is missing")
			}
			findings = append(findings, checkSignatureField("whitelistSignature", r.WhitelistSignature)...)
		}
		findings = append(findings, checkSignatureField("voteSignature", r.VoteSignature)...)
	} else {
		findings = append(findings, checkSignatureField("signature", r.Signature)...)
	}

	return findings
}

func checkSignatureField(name, value string) []string {
	if value == "" {
		return []string{name + " is missing"}
	}
	if !strings.HasPrefix(value, "0x") {
		return []string{name + " must be a hex string starting with 0x"}
	}
	return nil
}
