package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// Client wraps an Ethereum node connection with the two voting contracts.
// Read calls retry transient failures a bounded number of times before
// surfacing the error.
type Client struct {
	eth *ethclient.Client

	publicABI   abi.ABI
	privateABI  abi.ABI
	publicAddr  common.Address
	privateAddr common.Address

	chainID *big.Int

	readRetries    int
	readRetryDelay time.Duration
}

// Dial connects to the RPC node and binds the contract ABIs. Either contract
// address may be empty when only one contract kind is deployed.
func Dial(ctx context.Context, rpcURL, publicAddr, privateAddr string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	publicABI, err := abi.JSON(strings.NewReader(PublicVotingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to load public voting ABI: %w", err)
	}
	privateABI, err := abi.JSON(strings.NewReader(PrivateVotingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to load private voting ABI: %w", err)
	}

	c := &Client{
		eth:            eth,
		publicABI:      publicABI,
		privateABI:     privateABI,
		chainID:        big.NewInt(chainID),
		readRetries:    3,
		readRetryDelay: 500 * time.Millisecond,
	}

	if publicAddr != "" {
		if !common.IsHexAddress(publicAddr) {
			return nil, fmt.Errorf("invalid public voting contract address: %s", publicAddr)
		}
		c.publicAddr = common.HexToAddress(publicAddr)
	}
	if privateAddr != "" {
		if !common.IsHexAddress(privateAddr) {
			return nil, fmt.Errorf("invalid private voting contract address: %s", privateAddr)
		}
		c.privateAddr = common.HexToAddress(privateAddr)
	}

	return c, nil
}

// SetReadRetries overrides the bounded retry policy for read calls
func (c *Client) SetReadRetries(attempts int, delay time.Duration) {
	c.readRetries = attempts
	c.readRetryDelay = delay
}

// ChainID returns the configured chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// ContractAddress returns the deployed address for the contract kind
func (c *Client) ContractAddress(private bool) common.Address {
	if private {
		return c.privateAddr
	}
	return c.publicAddr
}

func (c *Client) contractABI(private bool) *abi.ABI {
	if private {
		return &c.privateABI
	}
	return &c.publicABI
}

// withRetries runs fn up to the configured attempt bound, sleeping between
// attempts. The last error is returned once the bound is exhausted.
func (c *Client) withRetries(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.readRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < c.readRetries {
			log.WithError(lastErr).Debugf("RPC read failed, retrying (%d/%d)", attempt, c.readRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.readRetryDelay):
			}
		}
	}
	return lastErr
}

// callRead packs a view call, executes it with retries, and unpacks the
// outputs
func (c *Client) callRead(ctx context.Context, private bool, method string, args ...interface{}) ([]interface{}, error) {
	contractABI := c.contractABI(private)
	to := c.ContractAddress(private)

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	var raw []byte
	err = c.withRetries(ctx, func() error {
		var callErr error
		raw, callErr = c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// PollCount returns the number of polls on the contract
func (c *Client) PollCount(ctx context.Context, private bool) (uint64, error) {
	out, err := c.callRead(ctx, private, "getPollCount")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// PollDetails fetches a fresh poll snapshot. For private polls the richer
// polls() accessor is used so the whitelist signer is included.
func (c *Client) PollDetails(ctx context.Context, private bool, pollID uint64) (*PollSnapshot, error) {
	method := "getPollDetails"
	if private {
		method = "polls"
	}

	out, err := c.callRead(ctx, private, method, new(big.Int).SetUint64(pollID))
	if err != nil {
		return nil, err
	}

	snapshot := &PollSnapshot{
		ID:             pollID,
		Title:          out[0].(string),
		Creator:        out[1].(common.Address),
		EndTime:        out[2].(uint64),
		CandidateCount: out[3].(uint16),
		VoterCount:     out[4].(uint64),
		MaxVoters:      out[5].(uint64),
		Private:        private,
	}
	if private {
		snapshot.WhitelistSigner = out[6].(common.Address)
	}
	return snapshot, nil
}

// Candidate returns a single candidate's name and tally
func (c *Client) Candidate(ctx context.Context, private bool, pollID uint64, candidateID uint16) (*Candidate, error) {
	out, err := c.callRead(ctx, private, "getCandidate", new(big.Int).SetUint64(pollID), candidateID)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		Name:      out[0].(string),
		VoteCount: out[1].(uint64),
	}, nil
}

// HasVoted reports whether the voter already cast a ballot in the poll
func (c *Client) HasVoted(ctx context.Context, private bool, pollID uint64, voter common.Address) (bool, error) {
	out, err := c.callRead(ctx, private, "hasVoted", new(big.Int).SetUint64(pollID), voter)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// RelayerAllowance returns the creator's general-pool gas deposit
// (the zero address is the general pool)
func (c *Client) RelayerAllowance(ctx context.Context, private bool, creator common.Address) (*big.Int, error) {
	out, err := c.callRead(ctx, private, "relayerAllowance", creator, common.Address{})
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// IsAuthorizedRelayer reports whether the address may submit meta-votes
func (c *Client) IsAuthorizedRelayer(ctx context.Context, private bool, relayer common.Address) (bool, error) {
	out, err := c.callRead(ctx, private, "authorizedRelayers", relayer)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// Balance returns the native-token balance of an account
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.withRetries(ctx, func() error {
		var callErr error
		balance, callErr = c.eth.BalanceAt(ctx, addr, nil)
		return callErr
	})
	return balance, err
}

// SuggestFees fetches live fee data. GasTipCap is left nil when the node does
// not support EIP-1559 suggestions.
func (c *Client) SuggestFees(ctx context.Context) (*FeeData, error) {
	var fees FeeData
	err := c.withRetries(ctx, func() error {
		gasPrice, callErr := c.eth.SuggestGasPrice(ctx)
		if callErr != nil {
			return callErr
		}
		fees.GasPrice = gasPrice

		tip, tipErr := c.eth.SuggestGasTipCap(ctx)
		if tipErr == nil {
			fees.GasTipCap = tip
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee data: %w", err)
	}
	return &fees, nil
}

// PackVote encodes a metaVote call into calldata plus its target contract
func (c *Client) PackVote(call *VoteCall) ([]byte, common.Address, error) {
	contractABI := c.contractABI(call.Private)
	to := c.ContractAddress(call.Private)

	var data []byte
	var err error
	if call.Private {
		data, err = contractABI.Pack("metaVote",
			call.PollID, call.CandidateID, call.Voter,
			call.Expiry, call.WhitelistSignature, call.VoteSignature)
	} else {
		data, err = contractABI.Pack("metaVote",
			call.PollID, call.CandidateID, call.Voter, call.VoteSignature)
	}
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to pack metaVote call: %w", err)
	}
	return data, to, nil
}

// EstimateVoteGas estimates gas for the metaVote call from the relayer account
func (c *Client) EstimateVoteGas(ctx context.Context, from common.Address, call *VoteCall) (uint64, error) {
	data, to, err := c.PackVote(call)
	if err != nil {
		return 0, err
	}

	var gas uint64
	err = c.withRetries(ctx, func() error {
		var callErr error
		gas, callErr = c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		return callErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas, nil
}

// PendingNonce returns the account's next nonce including pending transactions
func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, addr)
}

// SendTransaction broadcasts a signed transaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// TransactionKnown reports whether the node can see the transaction,
// pending or mined
func (c *Client) TransactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	_, _, err := c.eth.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TransactionReceipt returns the receipt once the transaction is mined
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// Close closes the underlying node connection
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}
