package submitter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/metrics"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/relay"
)

// Broadcaster is the write-side slice of the chain client the submitter needs
type Broadcaster interface {
	ChainID() *big.Int
	PackVote(call *chain.VoteCall) ([]byte, common.Address, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionKnown(ctx context.Context, hash common.Hash) (bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Result is returned to the API as soon as the transaction is in the mempool.
// Confirmation continues in the background.
type Result struct {
	TxHash        common.Hash
	Nonce         uint64
	GasLimit      uint64
	EstimatedCost *big.Int
	ChainID       *big.Int
}

// Config bounds the retry and polling behavior of the submitter
type Config struct {
	Speed               Speed
	MaxAttempts         int
	RetryDelay          time.Duration
	PropagationAttempts int
	PropagationDelay    time.Duration
	ConfirmationTimeout time.Duration
	SubmitTimeout       time.Duration // overall bound across all attempts
}

// DefaultConfig mirrors the production posture: three broadcast attempts two
// seconds apart, ten one-second propagation polls, three minutes of
// confirmation polling.
func DefaultConfig() Config {
	return Config{
		Speed:               SpeedStandard,
		MaxAttempts:         3,
		RetryDelay:          2 * time.Second,
		PropagationAttempts: 10,
		PropagationDelay:    time.Second,
		ConfirmationTimeout: 180 * time.Second,
		SubmitTimeout:       60 * time.Second,
	}
}

// Submitter signs and broadcasts validated votes from the relayer account.
// Nonce allocation is serialized through the NonceManager so concurrent
// requests never collide.
type Submitter struct {
	client  Broadcaster
	nonces  *NonceManager
	key     *ecdsa.PrivateKey
	relayer common.Address
	cfg     Config
}

// New creates a submitter for the relayer key
func New(client Broadcaster, key *ecdsa.PrivateKey, cfg Config) *Submitter {
	relayer := crypto.PubkeyToAddress(key.PublicKey)
	return &Submitter{
		client:  client,
		nonces:  NewNonceManager(client, relayer),
		key:     key,
		relayer: relayer,
		cfg:     cfg,
	}
}

// Relayer returns the submitting account's address
func (s *Submitter) Relayer() common.Address {
	return s.relayer
}

// Submit signs and broadcasts the vote, retrying transient failures with a
// fresh nonce and, on price rejections, a bumped fee. It returns once the
// transaction is visible in the mempool; a background goroutine follows the
// transaction to confirmation. The returned error is always a *relay.Error.
func (s *Submitter) Submit(ctx context.Context, v *relay.ValidatedVote) (*Result, error) {
	start := time.Now()

	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}

	data, to, err := s.client.PackVote(v.Call)
	if err != nil {
		return nil, relay.ErrSubmissionFailed(err, false)
	}

	plan := NewGasPlan(v.Fees, v.GasLimit, s.cfg.Speed)
	logger := log.WithFields(log.Fields{
		"poll_id": v.Call.PollID.Uint64(),
		"voter":   v.Call.Voter.Hex(),
		"private": v.Call.Private,
	})

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		metrics.SubmissionAttempts.Inc()

		if attempt > 1 {
			// The previous broadcast failed in an uncertain state, so
			// re-seed from the node rather than trusting the local counter
			if resyncErr := s.nonces.Resync(ctx); resyncErr != nil {
				lastErr = resyncErr
				break
			}
			select {
			case <-ctx.Done():
				return nil, relay.ErrTimeout(ctx.Err())
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		nonce, nonceErr := s.nonces.Reserve(ctx)
		if nonceErr != nil {
			lastErr = nonceErr
			continue
		}

		tx := s.buildTx(nonce, to, data, plan)
		signed, signErr := types.SignTx(tx, types.LatestSignerForChainID(s.client.ChainID()), s.key)
		if signErr != nil {
			s.nonces.Release(nonce)
			return nil, relay.ErrSubmissionFailed(signErr, false)
		}

		sendErr := s.client.SendTransaction(ctx, signed)
		if sendErr == nil {
			s.nonces.Complete(nonce)
			logger.WithFields(log.Fields{
				"tx_hash": signed.Hash().Hex(),
				"nonce":   nonce,
				"attempt": attempt,
			}).Info("Vote transaction broadcast")

			s.awaitPropagation(ctx, signed.Hash(), logger)
			metrics.ObserveSince(metrics.SubmissionDuration, start)

			go s.awaitConfirmation(signed.Hash(), logger)

			return &Result{
				TxHash:        signed.Hash(),
				Nonce:         nonce,
				GasLimit:      plan.GasLimit,
				EstimatedCost: v.EstimatedCost,
				ChainID:       s.client.ChainID(),
			}, nil
		}

		// The broadcast never reached the mempool, so the reservation can
		// be rolled back before classifying the failure
		s.nonces.Release(nonce)
		lastErr = sendErr

		switch {
		case isRevert(sendErr):
			logger.WithError(sendErr).Warn("Transaction rejected by contract, not retrying")
			return nil, relay.ErrSubmissionFailed(sendErr, false)
		case isFeeTooLow(sendErr):
			logger.WithError(sendErr).Warnf("Fee rejected on attempt %d, bumping 20%%", attempt)
			plan.Bump()
		default:
			logger.WithError(sendErr).Warnf("Broadcast attempt %d failed", attempt)
		}
	}

	logger.WithError(lastErr).Errorf("Vote submission failed after %d attempts", s.cfg.MaxAttempts)
	return nil, relay.ErrSubmissionFailed(
		fmt.Errorf("broadcast failed after %d attempts: %w", s.cfg.MaxAttempts, lastErr), true)
}

// buildTx constructs a dynamic-fee transaction when the plan carries a tip,
// falling back to a legacy transaction otherwise
func (s *Submitter) buildTx(nonce uint64, to common.Address, data []byte, plan *GasPlan) *types.Transaction {
	if plan.Dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   s.client.ChainID(),
			Nonce:     nonce,
			GasTipCap: plan.GasTipCap,
			GasFeeCap: plan.GasFeeCap,
			Gas:       plan.GasLimit,
			To:        &to,
			Data:      data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: plan.GasFeeCap,
		Gas:      plan.GasLimit,
		To:       &to,
		Data:     data,
	})
}

// awaitPropagation polls until the node reports the transaction as known.
// Propagation is best effort; the broadcast already succeeded, so failure to
// observe the transaction only logs a warning.
func (s *Submitter) awaitPropagation(ctx context.Context, hash common.Hash, logger *log.Entry) {
	for i := 0; i < s.cfg.PropagationAttempts; i++ {
		known, err := s.client.TransactionKnown(ctx, hash)
		if err == nil && known {
			logger.Debugf("Transaction %s visible in mempool after %d polls", hash.Hex(), i+1)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.PropagationDelay):
		}
	}
	logger.Warnf("Transaction %s not yet visible after %d polls, continuing", hash.Hex(), s.cfg.PropagationAttempts)
}

// awaitConfirmation follows the transaction to a receipt in the background.
// The relay response has already been sent, so outcomes only feed logs and
// metrics.
func (s *Submitter) awaitConfirmation(hash common.Hash, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warnf("Transaction %s unconfirmed after %s", hash.Hex(), s.cfg.ConfirmationTimeout)
			metrics.Confirmations.WithLabelValues("timeout").Inc()
			return
		case <-ticker.C:
			receipt, err := s.client.TransactionReceipt(ctx, hash)
			if err != nil || receipt == nil {
				continue
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				logger.WithFields(log.Fields{
					"tx_hash":  hash.Hex(),
					"block":    receipt.BlockNumber.Uint64(),
					"gas_used": receipt.GasUsed,
				}).Info("Vote transaction confirmed")
				metrics.Confirmations.WithLabelValues("confirmed").Inc()
			} else {
				logger.Errorf("Vote transaction %s reverted in block %d", hash.Hex(), receipt.BlockNumber.Uint64())
				metrics.Confirmations.WithLabelValues("reverted").Inc()
			}
			return
		}
	}
}

// isFeeTooLow matches node rejections of the transaction price
func isFeeTooLow(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "underpriced") ||
		strings.Contains(msg, "fee too low") ||
		strings.Contains(msg, "max fee per gas less than block base fee")
}

// isRevert matches contract-level rejections that retrying cannot fix
func isRevert(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}
