package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/relay"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/submitter"
)

type fakeValidator struct {
	result *relay.ValidatedVote
	err    error
	seen   *relay.VoteRequest
}

func (f *fakeValidator) Validate(_ context.Context, req *relay.VoteRequest) (*relay.ValidatedVote, error) {
	f.seen = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSubmitter struct {
	result *submitter.Result
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ *relay.ValidatedVote) (*submitter.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSubmitter) Relayer() common.Address {
	return common.HexToAddress("0x4444444444444444444444444444444444444444")
}

type fakeReader struct {
	count     uint64
	polls     map[uint64]*chain.PollSnapshot
	pollErrs  map[uint64]error
	allowance *big.Int
}

func (f *fakeReader) PollCount(_ context.Context, _ bool) (uint64, error) {
	return f.count, nil
}

func (f *fakeReader) PollDetails(_ context.Context, _ bool, pollID uint64) (*chain.PollSnapshot, error) {
	if err := f.pollErrs[pollID]; err != nil {
		return nil, err
	}
	return f.polls[pollID], nil
}

func (f *fakeReader) Candidate(_ context.Context, _ bool, _ uint64, candidateID uint16) (*chain.Candidate, error) {
	return &chain.Candidate{Name: "Candidate", VoteCount: uint64(candidateID) * 10}, nil
}

func (f *fakeReader) RelayerAllowance(_ context.Context, _ bool, _ common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func newTestServer(v *fakeValidator, s *fakeSubmitter, r *fakeReader) *Server {
	if r == nil {
		r = &fakeReader{allowance: big.NewInt(0)}
	}
	return NewServer(v, s, r, 5*time.Second, false)
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRelayerAddress(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/relayer-address", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0x4444444444444444444444444444444444444444",
		strings.ToLower(decode(t, rec)["relayerAddress"].(string)))
}

func TestPublicVoteAccepted(t *testing.T) {
	validator := &fakeValidator{result: &relay.ValidatedVote{}}
	sub := &fakeSubmitter{result: &submitter.Result{
		TxHash:        common.HexToHash("0xabc123"),
		Nonce:         7,
		EstimatedCost: big.NewInt(2e15), // 0.002 ether
		ChainID:       big.NewInt(137),
	}}
	srv := newTestServer(validator, sub, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/vote/public",
		`{"pollId":1,"candidateId":2,"voter":"0x2222222222222222222222222222222222222222","signature":"0xdead"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "pending", body["status"])
	require.Equal(t, float64(7), body["nonce"])
	require.Equal(t, float64(137), body["chainId"])
	require.Equal(t, "0.002", body["estimatedGasCost"])

	require.NotNil(t, validator.seen)
	require.False(t, validator.seen.Private)
	require.Equal(t, uint64(1), *validator.seen.PollID)
}

func TestPrivateVoteSetsContractKind(t *testing.T) {
	validator := &fakeValidator{result: &relay.ValidatedVote{}}
	sub := &fakeSubmitter{result: &submitter.Result{
		EstimatedCost: big.NewInt(0), ChainID: big.NewInt(137),
	}}
	srv := newTestServer(validator, sub, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/vote/private",
		`{"pollId":3,"candidateId":1,"voter":"0x2222222222222222222222222222222222222222","voteSignature":"0xdead"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, validator.seen.Private)
}

func TestVoteStructuralRejectionShape(t *testing.T) {
	validator := &fakeValidator{err: relay.ErrValidation([]string{"pollId is missing", "voter is missing"})}
	srv := newTestServer(validator, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/vote/public", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, string(relay.CodeValidation), body["code"])
	require.Len(t, body["details"], 2)
}

func TestVoteRejectionStatusPassthrough(t *testing.T) {
	validator := &fakeValidator{err: relay.ErrInsufficientAllowance("0.01", "0.001")}
	srv := newTestServer(validator, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/vote/public",
		`{"pollId":1,"candidateId":2,"voter":"0x2222222222222222222222222222222222222222","signature":"0xdead"}`)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, string(relay.CodeInsufficientAllowance), decode(t, rec)["code"])
}

func TestVoteMalformedJSON(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/vote/public", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(relay.CodeValidation), decode(t, rec)["code"])
}

func TestDeposits(t *testing.T) {
	reader := &fakeReader{allowance: big.NewInt(1.5e18)}
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, reader)

	rec := doRequest(t, srv, http.MethodGet,
		"/api/deposits/public/0x3333333333333333333333333333333333333333", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "1500000000000000000", body["deposits"])
	require.Equal(t, "1.5", body["formattedDeposits"])
}

func TestDepositsRejectsBadContractType(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodGet,
		"/api/deposits/hybrid/0x3333333333333333333333333333333333333333", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepositsRejectsBadAddress(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/deposits/public/nothex", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollListSkipsUnreadablePolls(t *testing.T) {
	reader := &fakeReader{
		count: 3,
		polls: map[uint64]*chain.PollSnapshot{
			0: {ID: 0, Title: "First", MaxVoters: 10},
			2: {ID: 2, Title: "Third", MaxVoters: 10},
		},
		pollErrs:  map[uint64]error{1: context.DeadlineExceeded},
		allowance: big.NewInt(0),
	}
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, reader)

	rec := doRequest(t, srv, http.MethodGet, "/api/polls/public", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, float64(2), body["count"])
}

func TestPollDetailsWithCandidates(t *testing.T) {
	reader := &fakeReader{
		polls: map[uint64]*chain.PollSnapshot{
			5: {ID: 5, Title: "Detailed", CandidateCount: 3, MaxVoters: 10},
		},
		allowance: big.NewInt(0),
	}
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, reader)

	rec := doRequest(t, srv, http.MethodGet, "/api/polls/public/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Detailed", body["title"])
	require.Len(t, body["candidates"], 3)
}

func TestPollDetailsRejectsBadPollID(t *testing.T) {
	srv := newTestServer(&fakeValidator{}, &fakeSubmitter{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/polls/public/notanumber", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
