package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	log "github.com/sirupsen/logrus"
)

const (
	// PublicDomainName is the EIP-712 domain name of the public voting contract
	PublicDomainName = "PublicVotingSystem"
	// PrivateDomainName is the EIP-712 domain name of the private voting contract
	PrivateDomainName = "PrivateVotingSystem"
	// DomainVersion is the EIP-712 domain version for both contracts
	DomainVersion = "1"
)

// Codec builds and recovers the typed-data signatures used by the voting
// contracts. Vote signatures are verified against the EIP-712 scheme first
// with a fallback to the legacy packed-hash scheme; whitelist approvals are
// EIP-712 only.
type Codec struct {
	chainID         *big.Int
	publicContract  common.Address
	privateContract common.Address
}

// NewCodec creates a codec bound to the deployed contract addresses
func NewCodec(chainID int64, publicContract, privateContract string) (*Codec, error) {
	c := &Codec{chainID: big.NewInt(chainID)}

	if publicContract != "" {
		if !common.IsHexAddress(publicContract) {
			return nil, fmt.Errorf("invalid public voting contract address: %s", publicContract)
		}
		c.publicContract = common.HexToAddress(publicContract)
	}
	if privateContract != "" {
		if !common.IsHexAddress(privateContract) {
			return nil, fmt.Errorf("invalid private voting contract address: %s", privateContract)
		}
		c.privateContract = common.HexToAddress(privateContract)
	}

	return c, nil
}

// domain returns the EIP-712 domain for the given contract kind
func (c *Codec) domain(private bool) apitypes.TypedDataDomain {
	name := PublicDomainName
	contract := c.publicContract
	if private {
		name = PrivateDomainName
		contract = c.privateContract
	}
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           DomainVersion,
		ChainId:           (*math.HexOrDecimal256)(c.chainID),
		VerifyingContract: contract.Hex(),
	}
}

func domainTypes() []apitypes.Type {
	return []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
}

// HashVote computes the EIP-712 digest of a Vote{pollId,candidateId,voter} struct
func (c *Codec) HashVote(pollID *big.Int, candidateID uint16, voter common.Address, private bool) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(),
			"Vote": []apitypes.Type{
				{Name: "pollId", Type: "uint256"},
				{Name: "candidateId", Type: "uint16"},
				{Name: "voter", Type: "address"},
			},
		},
		PrimaryType: "Vote",
		Domain:      c.domain(private),
		Message: apitypes.TypedDataMessage{
			"pollId":      (*math.HexOrDecimal256)(pollID),
			"candidateId": (*math.HexOrDecimal256)(big.NewInt(int64(candidateID))),
			"voter":       voter.Hex(),
		},
	}
	return hashTypedData(typedData)
}

// HashApproval computes the EIP-712 digest of a
// WhitelistApproval{pollId,voter,expiry} struct
func (c *Codec) HashApproval(pollID *big.Int, voter common.Address, expiry *big.Int) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(),
			"WhitelistApproval": []apitypes.Type{
				{Name: "pollId", Type: "uint256"},
				{Name: "voter", Type: "address"},
				{Name: "expiry", Type: "uint256"},
			},
		},
		PrimaryType: "WhitelistApproval",
		Domain:      c.domain(true),
		Message: apitypes.TypedDataMessage{
			"pollId": (*math.HexOrDecimal256)(pollID),
			"voter":  voter.Hex(),
			"expiry": (*math.HexOrDecimal256)(expiry),
		},
	}
	return hashTypedData(typedData)
}

// LegacyVoteHash computes the pre-EIP-712 digest: the personal-message hash of
// keccak256(abi.encodePacked(uint256 pollId, uint16 candidateId, address voter))
func LegacyVoteHash(pollID *big.Int, candidateID uint16, voter common.Address) []byte {
	packed := crypto.Keccak256(
		common.LeftPadBytes(pollID.Bytes(), 32),
		[]byte{byte(candidateID >> 8), byte(candidateID)},
		voter.Bytes(),
	)
	return accounts.TextHash(packed)
}

// hashTypedData applies the EIP-712 encoding:
// keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message))
func hashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// RecoverAddress recovers the signer's address from a digest and a 65-byte
// [R || S || V] signature. V may be 0/1 or 27/28.
func RecoverAddress(digest, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d, expected 65", len(signature))
	}

	// Work on a copy so the caller's signature is not mutated
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %d", signature[64])
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover failed: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifyVote checks a vote signature against the expected voter. The EIP-712
// scheme is tried first; on any failure (malformed signature or signer
// mismatch) the legacy packed-hash scheme is tried. The recovered address of
// the last attempted scheme is returned so callers can log mismatches.
// Never returns an error for malformed input, only ok=false.
func (c *Codec) VerifyVote(pollID *big.Int, candidateID uint16, voter common.Address, signature []byte, private bool) (common.Address, bool) {
	var recovered common.Address

	digest, err := c.HashVote(pollID, candidateID, voter, private)
	if err == nil {
		addr, err := RecoverAddress(digest, signature)
		if err == nil {
			recovered = addr
			if addressesEqual(addr, voter) {
				return addr, true
			}
			log.Debugf("EIP-712 vote recovery mismatch: got %s, want %s, trying legacy scheme",
				addr.Hex(), voter.Hex())
		} else {
			log.Debugf("EIP-712 vote recovery failed: %v, trying legacy scheme", err)
		}
	}

	legacyDigest := LegacyVoteHash(pollID, candidateID, voter)
	addr, err := RecoverAddress(legacyDigest, signature)
	if err != nil {
		log.Debugf("Legacy vote recovery failed: %v", err)
		return recovered, false
	}

	return addr, addressesEqual(addr, voter)
}

// VerifyApproval checks a whitelist approval signature against the poll's
// designated whitelist signer. Single scheme, no legacy fallback.
func (c *Codec) VerifyApproval(pollID *big.Int, voter common.Address, expiry *big.Int, signature []byte, whitelistSigner common.Address) (common.Address, bool) {
	digest, err := c.HashApproval(pollID, voter, expiry)
	if err != nil {
		log.Debugf("Whitelist approval hash failed: %v", err)
		return common.Address{}, false
	}

	addr, err := RecoverAddress(digest, signature)
	if err != nil {
		log.Debugf("Whitelist approval recovery failed: %v", err)
		return common.Address{}, false
	}

	return addr, addressesEqual(addr, whitelistSigner)
}

// SignVote signs a Vote struct with the EIP-712 scheme. Used by tests and
// local tooling; production vote signatures come from voter wallets.
func (c *Codec) SignVote(key *ecdsa.PrivateKey, pollID *big.Int, candidateID uint16, voter common.Address, private bool) ([]byte, error) {
	digest, err := c.HashVote(pollID, candidateID, voter, private)
	if err != nil {
		return nil, err
	}
	return signDigest(key, digest)
}

// SignVoteLegacy signs a vote with the legacy packed-hash scheme
func (c *Codec) SignVoteLegacy(key *ecdsa.PrivateKey, pollID *big.Int, candidateID uint16, voter common.Address) ([]byte, error) {
	return signDigest(key, LegacyVoteHash(pollID, candidateID, voter))
}

// SignApproval signs a WhitelistApproval struct with the whitelist signer's key
func (c *Codec) SignApproval(key *ecdsa.PrivateKey, pollID *big.Int, voter common.Address, expiry *big.Int) ([]byte, error) {
	digest, err := c.HashApproval(pollID, voter, expiry)
	if err != nil {
		return nil, err
	}
	return signDigest(key, digest)
}

// signDigest produces a wallet-style 65-byte signature with V in {27, 28}
func signDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// addressesEqual compares two addresses case-insensitively
func addressesEqual(a, b common.Address) bool {
	return a == b
}

// ParseSignature decodes a hex signature string, with or without 0x prefix,
// into 65 raw bytes
func ParseSignature(hexSig string) ([]byte, error) {
	if len(hexSig) >= 2 && hexSig[:2] == "0x" {
		hexSig = hexSig[2:]
	}

	if len(hexSig) != 130 {
		return nil, fmt.Errorf("invalid signature length: expected 130 hex chars (65 bytes), got %d chars", len(hexSig))
	}

	signature := common.FromHex(hexSig)
	if len(signature) != 65 {
		return nil, fmt.Errorf("hex decode produced wrong length: got %d bytes, expected 65", len(signature))
	}

	return signature, nil
}
