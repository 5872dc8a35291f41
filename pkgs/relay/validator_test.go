package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/approvals"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/signing"
)

const (
	testPublicContract  = "0x1111111111111111111111111111111111111111"
	testPrivateContract = "0x2222222222222222222222222222222222222222"
	testChainID         = 137
)

// fakeChain implements ChainReader with canned responses and call counters
type fakeChain struct {
	poll      *chain.PollSnapshot
	pollErr   error
	voted     bool
	votedErr  error
	allowance *big.Int
	balance   *big.Int
	authed    bool
	gas       uint64
	gasErr    error
	fees      *chain.FeeData

	calls int
}

func (f *fakeChain) PollDetails(_ context.Context, _ bool, _ uint64) (*chain.PollSnapshot, error) {
	f.calls++
	return f.poll, f.pollErr
}

func (f *fakeChain) HasVoted(_ context.Context, _ bool, _ uint64, _ common.Address) (bool, error) {
	f.calls++
	return f.voted, f.votedErr
}

func (f *fakeChain) RelayerAllowance(_ context.Context, _ bool, _ common.Address) (*big.Int, error) {
	f.calls++
	return f.allowance, nil
}

func (f *fakeChain) IsAuthorizedRelayer(_ context.Context, _ bool, _ common.Address) (bool, error) {
	f.calls++
	return f.authed, nil
}

func (f *fakeChain) Balance(_ context.Context, _ common.Address) (*big.Int, error) {
	f.calls++
	return f.balance, nil
}

func (f *fakeChain) SuggestFees(_ context.Context) (*chain.FeeData, error) {
	f.calls++
	return f.fees, nil
}

func (f *fakeChain) EstimateVoteGas(_ context.Context, _ common.Address, _ *chain.VoteCall) (uint64, error) {
	f.calls++
	return f.gas, f.gasErr
}

type fakeApprovals struct {
	approval *approvals.Approval
}

func (f *fakeApprovals) Get(_ context.Context, _ uint64, _ string) *approvals.Approval {
	return f.approval
}

type fakeIssuer struct {
	key    *ecdsa.PrivateKey
	codec  *signing.Codec
	expiry int64
	err    error
	calls  int
}

func (f *fakeIssuer) Issue(_ context.Context, pollID uint64, voter common.Address) (*approvals.Approval, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sig, err := f.codec.SignApproval(f.key, new(big.Int).SetUint64(pollID), voter, big.NewInt(f.expiry))
	if err != nil {
		return nil, err
	}
	return &approvals.Approval{
		PollID:    pollID,
		Voter:     approvals.NormalizeAddress(voter.Hex()),
		Expiry:    f.expiry,
		Signature: hexutil.Encode(sig),
	}, nil
}

type validatorFixture struct {
	validator *Validator
	chain     *fakeChain
	store     *fakeApprovals
	issuer    *fakeIssuer
	codec     *signing.Codec

	voterKey  *ecdsa.PrivateKey
	voter     common.Address
	signerKey *ecdsa.PrivateKey
	signer    common.Address
	relayer   common.Address
	now       time.Time
}

func newValidatorFixture(t *testing.T, private bool) *validatorFixture {
	t.Helper()

	codec, err := signing.NewCodec(testChainID, testPublicContract, testPrivateContract)
	require.NoError(t, err)

	voterKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	voter := crypto.PubkeyToAddress(voterKey.PublicKey)
	signer := crypto.PubkeyToAddress(signerKey.PublicKey)

	fc := &fakeChain{
		poll: &chain.PollSnapshot{
			ID:              7,
			Title:           "Best proposal",
			Creator:         common.HexToAddress("0x3333333333333333333333333333333333333333"),
			EndTime:         uint64(now.Unix()) + 3600,
			CandidateCount:  3,
			VoterCount:      10,
			MaxVoters:       100,
			WhitelistSigner: signer,
			Private:         private,
		},
		allowance: big.NewInt(1e18),
		balance:   big.NewInt(2e18),
		authed:    true,
		gas:       120000,
		fees:      &chain.FeeData{GasPrice: big.NewInt(30_000_000_000)},
	}

	store := &fakeApprovals{}
	issuer := &fakeIssuer{key: signerKey, codec: codec, expiry: now.Unix() + 86400}
	relayer := common.HexToAddress("0x4444444444444444444444444444444444444444")

	v := NewValidator(fc, codec, store, issuer, relayer, big.NewInt(1e17))
	v.now = func() time.Time { return now }

	return &validatorFixture{
		validator: v,
		chain:     fc,
		store:     store,
		issuer:    issuer,
		codec:     codec,
		voterKey:  voterKey,
		voter:     voter,
		signerKey: signerKey,
		signer:    signer,
		relayer:   relayer,
		now:       now,
	}
}

func (f *validatorFixture) publicRequest(t *testing.T) *VoteRequest {
	t.Helper()
	pollID := uint64(7)
	candidateID := uint32(1)
	sig, err := f.codec.SignVote(f.voterKey, new(big.Int).SetUint64(pollID), uint16(candidateID), f.voter, false)
	require.NoError(t, err)
	return &VoteRequest{
		PollID:      &pollID,
		CandidateID: &candidateID,
		Voter:       f.voter.Hex(),
		Signature:   hexutil.Encode(sig),
	}
}

func (f *validatorFixture) privateRequest(t *testing.T, attachApproval bool) *VoteRequest {
	t.Helper()
	pollID := uint64(7)
	candidateID := uint32(1)
	voteSig, err := f.codec.SignVote(f.voterKey, new(big.Int).SetUint64(pollID), uint16(candidateID), f.voter, true)
	require.NoError(t, err)

	req := &VoteRequest{
		PollID:        &pollID,
		CandidateID:   &candidateID,
		Voter:         f.voter.Hex(),
		VoteSignature: hexutil.Encode(voteSig),
		Private:       true,
	}
	if attachApproval {
		expiry := f.now.Unix() + 3600
		wlSig, err := f.codec.SignApproval(f.signerKey, new(big.Int).SetUint64(pollID), f.voter, big.NewInt(expiry))
		require.NoError(t, err)
		req.Expiry = &expiry
		req.WhitelistSignature = hexutil.Encode(wlSig)
	}
	return req
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, code, relayErr.Code)
}

func TestValidatePublicVote(t *testing.T) {
	f := newValidatorFixture(t, false)

	result, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	require.NoError(t, err)
	require.NotNil(t, result.Call)
	require.False(t, result.Call.Private)
	require.Equal(t, uint64(7), result.Call.PollID.Uint64())
	require.Equal(t, uint16(1), result.Call.CandidateID)
	require.Equal(t, f.voter, result.Call.Voter)

	// gasLimit = 120000 * 1.2
	require.Equal(t, uint64(144000), result.GasLimit)

	// estimatedCost = gasLimit * gasPrice * 1.2
	want := new(big.Int).SetUint64(144000)
	want.Mul(want, big.NewInt(30_000_000_000))
	want.Mul(want, big.NewInt(120))
	want.Div(want, big.NewInt(100))
	require.Zero(t, result.EstimatedCost.Cmp(want))
}

func TestValidateStructuralFailureMakesNoChainCalls(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.voted = true // would also fail AlreadyVoted if reached

	_, err := f.validator.Validate(context.Background(), &VoteRequest{})
	requireCode(t, err, CodeValidation)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.GreaterOrEqual(t, len(relayErr.Details), 3)
	require.Zero(t, f.chain.calls, "structural rejection must not touch the chain")
}

func TestValidatePollEnded(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.poll.EndTime = uint64(f.now.Unix()) - 1

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodePollEnded)
}

func TestValidatePollEndTimeBoundary(t *testing.T) {
	// endTime == now is still open; only now > endTime rejects
	f := newValidatorFixture(t, false)
	f.chain.poll.EndTime = uint64(f.now.Unix())

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	require.NoError(t, err)
}

func TestValidateCapacityReached(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.poll.VoterCount = 100
	f.chain.poll.MaxVoters = 100

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeCapacityReached)
}

func TestValidateAlreadyVoted(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.voted = true

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeAlreadyVoted)
}

func TestValidateWrongVoteSignature(t *testing.T) {
	f := newValidatorFixture(t, false)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := f.codec.SignVote(otherKey, big.NewInt(7), 1, f.voter, false)
	require.NoError(t, err)

	req := f.publicRequest(t)
	req.Signature = hexutil.Encode(sig)

	_, err = f.validator.Validate(context.Background(), req)
	requireCode(t, err, CodeInvalidSignature)
}

func TestValidateLegacyVoteSignature(t *testing.T) {
	f := newValidatorFixture(t, false)

	sig, err := f.codec.SignVoteLegacy(f.voterKey, big.NewInt(7), 1, f.voter)
	require.NoError(t, err)
	req := f.publicRequest(t)
	req.Signature = hexutil.Encode(sig)

	_, err = f.validator.Validate(context.Background(), req)
	require.NoError(t, err)
}

func TestValidatePrivateWithAttachedApproval(t *testing.T) {
	f := newValidatorFixture(t, true)

	result, err := f.validator.Validate(context.Background(), f.privateRequest(t, true))
	require.NoError(t, err)
	require.True(t, result.Call.Private)
	require.NotNil(t, result.Call.Expiry)
	require.Len(t, result.Call.WhitelistSignature, 65)
}

func TestValidatePrivateWithStoredApproval(t *testing.T) {
	f := newValidatorFixture(t, true)

	expiry := f.now.Unix() + 3600
	wlSig, err := f.codec.SignApproval(f.signerKey, big.NewInt(7), f.voter, big.NewInt(expiry))
	require.NoError(t, err)
	f.store.approval = &approvals.Approval{
		PollID:    7,
		Voter:     approvals.NormalizeAddress(f.voter.Hex()),
		Expiry:    expiry,
		Signature: hexutil.Encode(wlSig),
	}

	result, err := f.validator.Validate(context.Background(), f.privateRequest(t, false))
	require.NoError(t, err)
	require.Equal(t, expiry, result.Call.Expiry.Int64())
}

func TestValidatePrivateCreatorSelfSign(t *testing.T) {
	f := newValidatorFixture(t, true)
	f.chain.poll.Creator = f.voter

	result, err := f.validator.Validate(context.Background(), f.privateRequest(t, false))
	require.NoError(t, err)
	require.Equal(t, 1, f.issuer.calls)
	require.NotNil(t, result.Call.Expiry)
}

func TestValidatePrivateNotWhitelisted(t *testing.T) {
	f := newValidatorFixture(t, true)

	_, err := f.validator.Validate(context.Background(), f.privateRequest(t, false))
	requireCode(t, err, CodeNotWhitelisted)
	require.Zero(t, f.issuer.calls, "issuer only serves the poll creator")
}

func TestValidatePrivateExpiredApproval(t *testing.T) {
	f := newValidatorFixture(t, true)

	req := f.privateRequest(t, true)
	expired := f.now.Unix() // expiry == now is already invalid
	wlSig, err := f.codec.SignApproval(f.signerKey, big.NewInt(7), f.voter, big.NewInt(expired))
	require.NoError(t, err)
	req.Expiry = &expired
	req.WhitelistSignature = hexutil.Encode(wlSig)

	_, err = f.validator.Validate(context.Background(), req)
	requireCode(t, err, CodeWhitelistExpired)
}

func TestValidatePrivateWrongWhitelistSigner(t *testing.T) {
	f := newValidatorFixture(t, true)

	req := f.privateRequest(t, true)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	wlSig, err := f.codec.SignApproval(otherKey, big.NewInt(7), f.voter, big.NewInt(*req.Expiry))
	require.NoError(t, err)
	req.WhitelistSignature = hexutil.Encode(wlSig)

	_, err = f.validator.Validate(context.Background(), req)
	requireCode(t, err, CodeInvalidWhitelistSignature)
}

func TestValidateInsufficientAllowance(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.allowance = big.NewInt(1) // far below any estimate

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeInsufficientAllowance)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, 402, relayErr.Status)
}

func TestValidateRelayerUnderfunded(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.balance = big.NewInt(1e16) // below the 0.1 ether floor

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeRelayerUnderfunded)
}

func TestValidateRelayerUnauthorized(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.authed = false

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeRelayerUnauthorized)
}

func TestValidateUpstreamFailure(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.pollErr = errors.New("connection refused")

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeUpstreamUnavailable)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, 503, relayErr.Status)
}

func TestValidateEstimationRevert(t *testing.T) {
	f := newValidatorFixture(t, false)
	f.chain.gasErr = errors.New("execution reverted: PV: poll inactive")

	_, err := f.validator.Validate(context.Background(), f.publicRequest(t))
	requireCode(t, err, CodeSubmissionFailed)

	var relayErr *Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, 500, relayErr.Status)
}
