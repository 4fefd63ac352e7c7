package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/httpclient"
)

const adminKeyHeader = "x-admin-key"

// HTTPGateway talks to the escrow server over its JSON API
type HTTPGateway struct {
	mutating *httpclient.Client
	reads    *httpclient.Client
	baseURL  string
	adminKey string
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewHTTPGateway creates an escrow gateway from configuration
func NewHTTPGateway(cfg *config.SettlementConfig, log *logrus.Logger) *HTTPGateway {
	mutCfg := httpclient.DefaultConfig()
	mutCfg.Timeout = cfg.Timeout()
	mutCfg.MaxRetries = 0 // a retried transfer could move funds twice
	mutCfg.RateLimit = 0

	readCfg := mutCfg
	readCfg.MaxRetries = 2

	return &HTTPGateway{
		mutating: httpclient.New("settlement", mutCfg, log),
		reads:    httpclient.New("settlement_reads", readCfg, log),
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		adminKey: cfg.AdminKey,
		timeout:  cfg.Timeout(),
		logger:   log.WithField("component", "settlement"),
	}
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

type deployRequest struct {
	CourseCode string `json:"courseCode"`
	UserID     string `json:"userId"`
}

type deployResponse struct {
	envelope
	Contract struct {
		Address    string `json:"address"`
		FundAmount string `json:"fundAmount"`
	} `json:"contract"`
	TransactionHash string `json:"transactionHash"`
}

type placeRequest struct {
	ContractAddress string  `json:"contractAddress"`
	GradeThreshold  float64 `json:"gradeThreshold"`
	BetAmount       string  `json:"betAmount"`
}

type placeResponse struct {
	envelope
	TransactionHash string       `json:"transactionHash"`
	BetID           *json.Number `json:"betId"`
}

type resolveOneRequest struct {
	ContractAddress string  `json:"contractAddress"`
	BetID           int64   `json:"betId"`
	ActualGrade     float64 `json:"actualGrade"`
}

type resolveOneResponse struct {
	envelope
	TransactionHash string `json:"transactionHash"`
	Won             *bool  `json:"won"`
}

type resolveAllRequest struct {
	ContractAddress string  `json:"contractAddress"`
	ActualGrade     float64 `json:"actualGrade"`
}

type resolveAllResponse struct {
	envelope
	TransactionHash string `json:"transactionHash"`
	Results         []struct {
		BetID json.Number `json:"betId"`
		Won   bool        `json:"won"`
	} `json:"results"`
}

type contractInfoResponse struct {
	envelope
	Contract struct {
		Address          string `json:"address"`
		TotalLiabilities string `json:"totalLiabilities"`
		ContractBalance  string `json:"contractBalance"`
		NextBetID        string `json:"nextBetId"`
		AvailableBalance string `json:"availableBalance"`
	} `json:"contract"`
}

// DeployAndFund provisions and funds a new escrow for a course
func (g *HTTPGateway) DeployAndFund(ctx context.Context, courseCode, ownerID string) (*Deployment, error) {
	var resp deployResponse
	if err := g.post(ctx, "deploy", "/api/deploy-contract", false, deployRequest{CourseCode: courseCode, UserID: ownerID}, &resp); err != nil {
		return nil, err
	}

	addr, err := NormalizeAddress(resp.Contract.Address)
	if err != nil {
		return nil, g.invalid("deploy", err)
	}
	funded, err := decimal.NewFromString(resp.Contract.FundAmount)
	if err != nil {
		funded = decimal.Zero
	}

	g.logger.WithFields(logrus.Fields{
		"course_code":      courseCode,
		"contract_address": addr,
		"funded_amount":    funded.String(),
	}).Info("Escrow deployed")

	return &Deployment{Address: addr, FundedAmount: funded, TransactionHash: resp.TransactionHash}, nil
}

// PlaceStake transfers a stake into escrow
func (g *HTTPGateway) PlaceStake(ctx context.Context, contract string, threshold float64, native decimal.Decimal) (*StakeReceipt, error) {
	addr, err := NormalizeAddress(contract)
	if err != nil {
		return nil, err
	}
	if ToWei(native).Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, native.String())
	}

	var resp placeResponse
	req := placeRequest{ContractAddress: addr, GradeThreshold: threshold, BetAmount: native.String()}
	if err := g.post(ctx, "place_stake", "/api/place-bet", false, req, &resp); err != nil {
		return nil, err
	}

	// The transfer is acknowledged from here on; unusable proof fields are dropped, not fatal.
	log := g.logger.WithFields(logrus.Fields{
		"contract_address": addr,
		"grade_threshold":  threshold,
	})

	receipt := &StakeReceipt{}
	if resp.TransactionHash != "" {
		hash, err := NormalizeTxHash(resp.TransactionHash)
		if err != nil {
			log.WithError(err).Warn("Escrow acknowledged stake with an unusable transaction hash")
		} else {
			receipt.TransactionHash = hash
		}
	}
	if resp.BetID != nil {
		if id, err := resp.BetID.Int64(); err != nil {
			log.WithField("bet_id", resp.BetID.String()).Warn("Escrow acknowledged stake with a non-integer bet id")
		} else {
			receipt.BetID = &id
		}
	}

	return receipt, nil
}

// ResolveOne settles a single bet
func (g *HTTPGateway) ResolveOne(ctx context.Context, contract string, betID int64, grade float64) (*Resolution, error) {
	addr, err := NormalizeAddress(contract)
	if err != nil {
		return nil, err
	}

	var resp resolveOneResponse
	req := resolveOneRequest{ContractAddress: addr, BetID: betID, ActualGrade: grade}
	if err := g.post(ctx, "resolve_one", "/api/admin/resolve-bet", true, req, &resp); err != nil {
		return nil, err
	}
	if resp.Won == nil {
		return nil, g.invalid("resolve_one", fmt.Errorf("%w: missing won for bet %d", ErrInvalidResponse, betID))
	}

	return &Resolution{BetID: betID, Won: *resp.Won, TransactionHash: resp.TransactionHash}, nil
}

// ResolveAll settles every open bet of an escrow
func (g *HTTPGateway) ResolveAll(ctx context.Context, contract string, grade float64) ([]Resolution, error) {
	addr, err := NormalizeAddress(contract)
	if err != nil {
		return nil, err
	}

	var resp resolveAllResponse
	req := resolveAllRequest{ContractAddress: addr, ActualGrade: grade}
	if err := g.post(ctx, "resolve_all", "/api/admin/resolve-all", true, req, &resp); err != nil {
		return nil, err
	}

	out := make([]Resolution, 0, len(resp.Results))
	for _, r := range resp.Results {
		id, err := r.BetID.Int64()
		if err != nil {
			return nil, g.invalid("resolve_all", fmt.Errorf("%w: betId %q", ErrInvalidResponse, r.BetID.String()))
		}
		out = append(out, Resolution{BetID: id, Won: r.Won, TransactionHash: resp.TransactionHash})
	}

	return out, nil
}

// ContractInfo reads an escrow's balance snapshot
func (g *HTTPGateway) ContractInfo(ctx context.Context, contract string) (*ContractInfo, error) {
	addr, err := NormalizeAddress(contract)
	if err != nil {
		return nil, err
	}

	var resp contractInfoResponse
	if err := g.get(ctx, "contract_info", "/api/contract/"+url.PathEscape(addr), &resp); err != nil {
		return nil, err
	}

	info := &ContractInfo{Address: addr}
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{resp.Contract.TotalLiabilities, &info.TotalLiabilities},
		{resp.Contract.ContractBalance, &info.ContractBalance},
		{resp.Contract.AvailableBalance, &info.AvailableBalance},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, g.invalid("contract_info", fmt.Errorf("%w: amount %q", ErrInvalidResponse, f.raw))
		}
		*f.dst = v
	}
	if resp.Contract.NextBetID != "" {
		if info.NextBetID, err = strconv.ParseInt(resp.Contract.NextBetID, 10, 64); err != nil {
			return nil, g.invalid("contract_info", fmt.Errorf("%w: nextBetId %q", ErrInvalidResponse, resp.Contract.NextBetID))
		}
	}

	return info, nil
}

// Health probes the escrow server
func (g *HTTPGateway) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.get(ctx, "health", "/api/health", &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return fmt.Errorf("%w: status %q", ErrUnavailable, resp.Status)
	}
	return nil
}

// Close releases idle connections
func (g *HTTPGateway) Close() error {
	_ = g.reads.Close()
	return g.mutating.Close()
}

func (g *HTTPGateway) post(ctx context.Context, op, path string, admin bool, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	header := http.Header{}
	if admin {
		header.Set(adminKeyHeader, g.adminKey)
	}

	return g.do(ctx, op, func(ctx context.Context) (*http.Response, error) {
		return g.mutating.Post(ctx, g.baseURL+path, header, bytes.NewReader(body))
	}, out)
}

func (g *HTTPGateway) get(ctx context.Context, op, path string, out interface{}) error {
	return g.do(ctx, op, func(ctx context.Context) (*http.Response, error) {
		return g.reads.Get(ctx, g.baseURL+path, nil)
	}, out)
}

func (g *HTTPGateway) do(ctx context.Context, op string, send func(context.Context) (*http.Response, error), out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	defer func() { CallLatency.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	resp, err := send(ctx)
	if err != nil {
		if httpclient.IsTimeout(err) {
			return g.fail(op, "timeout", fmt.Errorf("%w: %s: %v", ErrTimeout, op, err))
		}
		// open circuit and refused connections both mean nothing was sent
		return g.fail(op, "unavailable", fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if httpclient.IsTimeout(err) {
			return g.fail(op, "timeout", fmt.Errorf("%w: %s: %v", ErrTimeout, op, err))
		}
		return g.fail(op, "unavailable", fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err))
	}

	var env envelope
	_ = json.Unmarshal(data, &env)

	switch {
	case resp.StatusCode == http.StatusNotFound && len(env.Error) == 0:
		return g.fail(op, "unsupported", fmt.Errorf("%w: %s", ErrUnsupported, op))
	case resp.StatusCode >= 300:
		return g.fail(op, "rejected", fmt.Errorf("%w: %s: status %d: %s", ErrRejected, op, resp.StatusCode, describe(env, data)))
	case env.Success != nil && !*env.Success:
		return g.fail(op, "rejected", fmt.Errorf("%w: %s: %s", ErrRejected, op, describe(env, data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return g.invalid(op, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, op, err))
	}

	CallsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

func (g *HTTPGateway) fail(op, outcome string, err error) error {
	CallsTotal.WithLabelValues(op, outcome).Inc()
	g.logger.WithFields(logrus.Fields{
		"operation": op,
		"outcome":   outcome,
	}).WithError(err).Warn("Escrow call failed")
	return err
}

func (g *HTTPGateway) invalid(op string, err error) error {
	if !errors.Is(err, ErrInvalidResponse) {
		err = fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return g.fail(op, "invalid", err)
}

func describe(env envelope, raw []byte) string {
	msg := strings.TrimSpace(strings.Join([]string{env.Error, env.Details}, " "))
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
		if len(msg) > 256 {
			msg = msg[:256]
		}
	}
	return msg
}
