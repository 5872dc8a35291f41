package relay

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/approvals"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/signing"
)

// ChainReader is the read-only slice of the chain client the validator needs
type ChainReader interface {
	PollDetails(ctx context.Context, private bool, pollID uint64) (*chain.PollSnapshot, error)
	HasVoted(ctx context.Context, private bool, pollID uint64, voter common.Address) (bool, error)
	RelayerAllowance(ctx context.Context, private bool, creator common.Address) (*big.Int, error)
	IsAuthorizedRelayer(ctx context.Context, private bool, relayer common.Address) (bool, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	SuggestFees(ctx context.Context) (*chain.FeeData, error)
	EstimateVoteGas(ctx context.Context, from common.Address, call *chain.VoteCall) (uint64, error)
}

// ApprovalSource looks up stored whitelist approvals
type ApprovalSource interface {
	Get(ctx context.Context, pollID uint64, voter string) *approvals.Approval
}

// ApprovalIssuer synthesizes a fresh approval, used for the poll creator's
// implicit eligibility
type ApprovalIssuer interface {
	Issue(ctx context.Context, pollID uint64, voter common.Address) (*approvals.Approval, error)
}

// ValidatedVote is the outcome of a successful validation pass, carrying
// everything the submitter needs
type ValidatedVote struct {
	Call          *chain.VoteCall
	Poll          *chain.PollSnapshot
	GasLimit      uint64 // estimate plus 20% buffer
	Fees          *chain.FeeData
	EstimatedCost *big.Int
}

// Validator checks an inbound vote request against current on-chain state and
// its signatures before any transaction is built. Checks run cheapest first
// and terminate on the first failure; no side effects occur before every
// check passes.
type Validator struct {
	chain  ChainReader
	codec  *signing.Codec
	store  ApprovalSource
	issuer ApprovalIssuer // optional

	relayer           common.Address
	minRelayerBalance *big.Int

	now func() time.Time
}

// NewValidator wires the validation pipeline. issuer may be nil, disabling
// creator self-sign synthesis.
func NewValidator(reader ChainReader, codec *signing.Codec, store ApprovalSource, issuer ApprovalIssuer, relayer common.Address, minRelayerBalance *big.Int) *Validator {
	return &Validator{
		chain:             reader,
		codec:             codec,
		store:             store,
		issuer:            issuer,
		relayer:           relayer,
		minRelayerBalance: minRelayerBalance,
		now:               time.Now,
	}
}

// Validate runs the six-step pipeline. The returned error is always a
// *relay.Error.
func (v *Validator) Validate(ctx context.Context, req *VoteRequest) (*ValidatedVote, error) {
	// Step 1: structural, no chain calls
	if findings := req.structuralErrors(); len(findings) > 0 {
		return nil, ErrValidation(findings)
	}

	pollID := *req.PollID
	candidateID := uint16(*req.CandidateID)
	voter := common.HexToAddress(req.Voter)
	logger := log.WithFields(log.Fields{
		"poll_id":      pollID,
		"candidate_id": candidateID,
		"voter":        voter.Hex(),
		"private":      req.Private,
	})

	// Step 2: fresh poll state
	poll, err := v.chain.PollDetails(ctx, req.Private, pollID)
	if err != nil {
		return nil, upstreamError(err)
	}
	now := v.now()
	if now.Unix() > int64(poll.EndTime) {
		return nil, ErrPollEnded()
	}
	if poll.VoterCount >= poll.MaxVoters {
		return nil, ErrCapacityReached()
	}

	// Step 3: double-vote
	voted, err := v.chain.HasVoted(ctx, req.Private, pollID, voter)
	if err != nil {
		return nil, upstreamError(err)
	}
	if voted {
		return nil, ErrAlreadyVoted()
	}

	// Step 4: eligibility (private polls only)
	var expiry *big.Int
	var whitelistSig []byte
	if req.Private {
		expiry, whitelistSig, err = v.resolveApproval(ctx, req, poll, voter, now, logger)
		if err != nil {
			return nil, err
		}
	}

	// Step 5: vote signature
	voteSig, parseErr := signing.ParseSignature(req.voteSig())
	if parseErr != nil {
		return nil, ErrInvalidSignature()
	}
	pollIDBig := new(big.Int).SetUint64(pollID)
	if recovered, ok := v.codec.VerifyVote(pollIDBig, candidateID, voter, voteSig, req.Private); !ok {
		logger.Warnf("Vote signature mismatch: recovered %s", recovered.Hex())
		return nil, ErrInvalidSignature()
	}

	call := &chain.VoteCall{
		Private:            req.Private,
		PollID:             pollIDBig,
		CandidateID:        candidateID,
		Voter:              voter,
		Expiry:             expiry,
		WhitelistSignature: whitelistSig,
		VoteSignature:      voteSig,
	}

	// Step 6: funding
	result, err := v.checkFunding(ctx, req.Private, poll, call, logger)
	if err != nil {
		return nil, err
	}
	result.Call = call
	result.Poll = poll

	return result, nil
}

// resolveApproval finds or synthesizes the whitelist approval for the voter
// and verifies it against the poll's designated signer
func (v *Validator) resolveApproval(ctx context.Context, req *VoteRequest, poll *chain.PollSnapshot, voter common.Address, now time.Time, logger *log.Entry) (*big.Int, []byte, error) {
	expiry := int64(0)
	sigHex := ""
	if req.WhitelistSignature != "" && req.Expiry != nil {
		expiry = *req.Expiry
		sigHex = req.WhitelistSignature
	} else if stored := v.store.Get(ctx, poll.ID, voter.Hex()); stored != nil {
		logger.Debug("Using stored whitelist approval")
		expiry = stored.Expiry
		sigHex = stored.Signature
	} else if voter == poll.Creator && v.issuer != nil {
		// The creator is implicitly eligible; synthesize an approval on
		// demand. The signature check below still applies, the contract
		// stays authoritative.
		issued, issueErr := v.issuer.Issue(ctx, poll.ID, voter)
		if issueErr != nil {
			logger.WithError(issueErr).Warn("Failed to self-sign creator approval")
			return nil, nil, ErrNotWhitelisted()
		}
		expiry = issued.Expiry
		sigHex = issued.Signature
	} else {
		return nil, nil, ErrNotWhitelisted()
	}

	if expiry <= now.Unix() {
		return nil, nil, ErrWhitelistExpired()
	}

	sig, parseErr := signing.ParseSignature(sigHex)
	if parseErr != nil {
		return nil, nil, ErrInvalidWhitelistSignature()
	}

	expiryBig := big.NewInt(expiry)
	pollIDBig := new(big.Int).SetUint64(poll.ID)
	recovered, ok := v.codec.VerifyApproval(pollIDBig, voter, expiryBig, sig, poll.WhitelistSigner)
	if !ok {
		logger.Warnf("Whitelist approval signer mismatch: recovered %s, want %s",
			recovered.Hex(), poll.WhitelistSigner.Hex())
		return nil, nil, ErrInvalidWhitelistSignature()
	}

	return expiryBig, sig, nil
}

// checkFunding estimates the transaction cost and verifies the economic
// preconditions: creator allowance covers the cost with a 20% safety margin,
// the relayer holds the absolute balance floor, and the relayer is authorized
// on the contract.
func (v *Validator) checkFunding(ctx context.Context, private bool, poll *chain.PollSnapshot, call *chain.VoteCall, logger *log.Entry) (*ValidatedVote, error) {
	estimate, err := v.chain.EstimateVoteGas(ctx, v.relayer, call)
	if err != nil {
		if isRevertError(err) {
			return nil, ErrSubmissionFailed(err, false)
		}
		return nil, upstreamError(err)
	}
	gasLimit := estimate * 120 / 100

	fees, err := v.chain.SuggestFees(ctx)
	if err != nil {
		return nil, upstreamError(err)
	}

	// estimatedCost = gasLimit x feePerGas x 1.2 safety margin
	cost := new(big.Int).SetUint64(gasLimit)
	cost.Mul(cost, fees.GasPrice)
	cost.Mul(cost, big.NewInt(120))
	cost.Div(cost, big.NewInt(100))

	allowance, err := v.chain.RelayerAllowance(ctx, private, poll.Creator)
	if err != nil {
		return nil, upstreamError(err)
	}
	if allowance.Cmp(cost) < 0 {
		logger.Warnf("Creator allowance %s below estimated cost %s",
			chain.FormatEther(allowance), chain.FormatEther(cost))
		return nil, ErrInsufficientAllowance(chain.FormatEther(cost), chain.FormatEther(allowance))
	}

	balance, err := v.chain.Balance(ctx, v.relayer)
	if err != nil {
		return nil, upstreamError(err)
	}
	if balance.Cmp(v.minRelayerBalance) < 0 {
		logger.Errorf("Relayer balance %s below floor %s",
			chain.FormatEther(balance), chain.FormatEther(v.minRelayerBalance))
		return nil, ErrRelayerUnderfunded()
	}

	authorized, err := v.chain.IsAuthorizedRelayer(ctx, private, v.relayer)
	if err != nil {
		return nil, upstreamError(err)
	}
	if !authorized {
		return nil, ErrRelayerUnauthorized()
	}

	logger.WithFields(log.Fields{
		"gas_limit":      gasLimit,
		"gas_price":      fees.GasPrice.String(),
		"estimated_cost": chain.FormatEther(cost),
	}).Debug("Funding checks passed")

	return &ValidatedVote{
		GasLimit:      gasLimit,
		Fees:          fees,
		EstimatedCost: cost,
	}, nil
}

// upstreamError maps a failed chain read onto the retryable taxonomy
func upstreamError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout(err)
	}
	return ErrUpstream(err)
}

// isRevertError reports whether the node rejected the call at the contract
// level rather than the network level
func isRevertError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}
