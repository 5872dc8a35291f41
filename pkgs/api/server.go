package api

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/AkshayPatel-02/vote-relayer/pkgs/chain"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/deduplication"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/metrics"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/relay"
	"github.com/AkshayPatel-02/vote-relayer/pkgs/submitter"
)

// VoteValidator runs the pre-submission checks on an inbound request
type VoteValidator interface {
	Validate(ctx context.Context, req *relay.VoteRequest) (*relay.ValidatedVote, error)
}

// VoteSubmitter broadcasts a validated vote and returns mempool details
type VoteSubmitter interface {
	Submit(ctx context.Context, v *relay.ValidatedVote) (*submitter.Result, error)
	Relayer() common.Address
}

// PollReader serves the read-only poll and deposit endpoints
type PollReader interface {
	PollCount(ctx context.Context, private bool) (uint64, error)
	PollDetails(ctx context.Context, private bool, pollID uint64) (*chain.PollSnapshot, error)
	Candidate(ctx context.Context, private bool, pollID uint64, candidateID uint16) (*chain.Candidate, error)
	RelayerAllowance(ctx context.Context, private bool, creator common.Address) (*big.Int, error)
}

// Server is the HTTP front of the relayer. Vote handlers delegate to the
// validator and submitter; read endpoints go straight to the chain client.
type Server struct {
	engine         *gin.Engine
	validator      VoteValidator
	submitter      VoteSubmitter
	reader         PollReader
	guard          *deduplication.Guard
	requestTimeout time.Duration
}

// NewServer wires the routes. debug toggles gin's verbose mode.
func NewServer(validator VoteValidator, sub VoteSubmitter, reader PollReader, requestTimeout time.Duration, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:         gin.New(),
		validator:      validator,
		submitter:      sub,
		reader:         reader,
		guard:          deduplication.NewGuard(),
		requestTimeout: requestTimeout,
	}

	s.engine.Use(gin.Recovery(), requestLogger())

	apiGroup := s.engine.Group("/api")
	{
		apiGroup.GET("/health", s.handleHealth)
		apiGroup.GET("/relayer-address", s.handleRelayerAddress)
		apiGroup.GET("/deposits/:contractType/:address", s.handleDeposits)
		apiGroup.GET("/polls/:contractType", s.handlePollList)
		apiGroup.GET("/polls/:contractType/:pollId", s.handlePollDetails)
		apiGroup.POST("/vote/public", s.handleVote(false))
		apiGroup.POST("/vote/private", s.handleVote(true))
	}

	return s
}

// Handler exposes the router for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails
func (s *Server) Run(addr string) error {
	log.Infof("Relay API listening on %s", addr)
	return s.engine.Run(addr)
}

// requestLogger tags every request with a UUID and logs its outcome
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("Request handled")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRelayerAddress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relayerAddress": s.submitter.Relayer().Hex(),
	})
}

// contractKind maps the :contractType path segment onto the private flag
func contractKind(c *gin.Context) (bool, bool) {
	switch c.Param("contractType") {
	case "public":
		return false, true
	case "private":
		return true, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "contractType must be public or private",
			"code":  string(relay.CodeValidation),
		})
		return false, false
	}
}

func (s *Server) handleDeposits(c *gin.Context) {
	private, ok := contractKind(c)
	if !ok {
		return
	}

	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid address",
			"code":  string(relay.CodeValidation),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	allowance, err := s.reader.RelayerAllowance(ctx, private, common.HexToAddress(address))
	if err != nil {
		s.writeError(c, relay.ErrUpstream(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":           common.HexToAddress(address).Hex(),
		"deposits":          allowance.String(),
		"formattedDeposits": chain.FormatEther(allowance),
	})
}

func (s *Server) handlePollList(c *gin.Context) {
	private, ok := contractKind(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	count, err := s.reader.PollCount(ctx, private)
	if err != nil {
		s.writeError(c, relay.ErrUpstream(err))
		return
	}

	polls := make([]gin.H, 0, count)
	for id := uint64(0); id < count; id++ {
		poll, err := s.reader.PollDetails(ctx, private, id)
		if err != nil {
			// A single unreadable poll must not break the listing
			log.WithError(err).Warnf("Skipping unreadable poll %d", id)
			continue
		}
		polls = append(polls, pollJSON(poll))
	}

	c.JSON(http.StatusOK, gin.H{"polls": polls, "count": len(polls)})
}

func (s *Server) handlePollDetails(c *gin.Context) {
	private, ok := contractKind(c)
	if !ok {
		return
	}

	pollID, err := strconv.ParseUint(c.Param("pollId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "pollId must be a non-negative integer",
			"code":  string(relay.CodeValidation),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	poll, err := s.reader.PollDetails(ctx, private, pollID)
	if err != nil {
		s.writeError(c, relay.ErrUpstream(err))
		return
	}

	candidates := make([]gin.H, 0, poll.CandidateCount)
	for id := uint16(0); id < poll.CandidateCount; id++ {
		candidate, err := s.reader.Candidate(ctx, private, pollID, id)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable candidate %d of poll %d", id, pollID)
			continue
		}
		candidates = append(candidates, gin.H{
			"candidateId": id,
			"name":        candidate.Name,
			"voteCount":   candidate.VoteCount,
		})
	}

	body := pollJSON(poll)
	body["candidates"] = candidates
	c.JSON(http.StatusOK, body)
}

func pollJSON(poll *chain.PollSnapshot) gin.H {
	return gin.H{
		"pollId":         poll.ID,
		"title":          poll.Title,
		"creator":        poll.Creator.Hex(),
		"endTime":        poll.EndTime,
		"candidateCount": poll.CandidateCount,
		"voterCount":     poll.VoterCount,
		"maxVoters":      poll.MaxVoters,
		"isPrivate":      poll.Private,
	}
}

// handleVote is the relay path shared by both contract kinds
func (s *Server) handleVote(private bool) gin.HandlerFunc {
	contract := "public"
	if private {
		contract = "private"
	}

	return func(c *gin.Context) {
		var req relay.VoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.RelayRequests.WithLabelValues(contract, "rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Malformed JSON body",
				"code":    string(relay.CodeValidation),
				"details": []string{err.Error()},
			})
			return
		}
		req.Private = private

		// Suppress a second in-flight attempt for the same vote; hasVoted
		// only reflects mined state, so without this both would broadcast
		if req.PollID != nil && req.Voter != "" {
			key := s.guard.Key(private, *req.PollID, req.Voter)
			if !s.guard.Acquire(key) {
				metrics.RelayRequests.WithLabelValues(contract, "rejected").Inc()
				s.writeError(c, relay.ErrDuplicateRequest())
				return
			}
			defer s.guard.Release(key)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
		defer cancel()

		validationStart := time.Now()
		validated, err := s.validator.Validate(ctx, &req)
		metrics.ObserveSince(metrics.ValidationDuration, validationStart)
		if err != nil {
			metrics.RelayRequests.WithLabelValues(contract, "rejected").Inc()
			s.writeError(c, err)
			return
		}

		// The broadcast must survive a client disconnect; once validation
		// passes the transaction is going out
		result, err := s.submitter.Submit(context.WithoutCancel(ctx), validated)
		if err != nil {
			metrics.RelayRequests.WithLabelValues(contract, "failed").Inc()
			s.writeError(c, err)
			return
		}

		metrics.RelayRequests.WithLabelValues(contract, "accepted").Inc()
		c.JSON(http.StatusAccepted, gin.H{
			"status":           "pending",
			"txHash":           result.TxHash.Hex(),
			"estimatedGasCost": chain.FormatEther(result.EstimatedCost),
			"nonce":            result.Nonce,
			"chainId":          result.ChainID.Uint64(),
		})
	}
}

// writeError renders the stable {error, code} shape and counts the rejection
func (s *Server) writeError(c *gin.Context, err error) {
	relayErr := relay.AsError(err)
	metrics.Rejections.WithLabelValues(string(relayErr.Code)).Inc()

	if relayErr.Err != nil {
		requestID, _ := c.Get("request_id")
		log.WithFields(log.Fields{
			"request_id": fmt.Sprintf("%v", requestID),
			"code":       relayErr.Code,
		}).WithError(relayErr.Err).Error("Relay request failed")
	}

	body := gin.H{
		"error": relayErr.Message,
		"code":  string(relayErr.Code),
	}
	if len(relayErr.Details) > 0 {
		body["details"] = relayErr.Details
	}
	c.JSON(relayErr.Status, body)
}
