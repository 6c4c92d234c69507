// Package relay talks to the meta-transaction relay: it submits signed
// payloads, reads task status and converts gas into fee token amounts.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"

	"github.com/AvaProtocol/ap-bundler/core/chainio"
	"github.com/AvaProtocol/ap-bundler/metrics"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
	"github.com/AvaProtocol/ap-bundler/version"
)

const (
	DefaultPollInterval = 4 * time.Second
	DefaultFeeCacheTTL  = 15 * time.Second
	DefaultTimeout      = 30 * time.Second
)

type Config struct {
	URL    string
	APIKey string

	PollInterval time.Duration
	// MaxWait bounds PollUntilTerminal. Zero keeps polling until the task is
	// terminal or the caller's context is done.
	MaxWait time.Duration
	// ReceiptInterval paces receipt lookups once the relay reports a hash.
	ReceiptInterval time.Duration
	// FeeCacheTTL of fee quotes. Zero disables the cache.
	FeeCacheTTL  time.Duration
	HighPriority bool
	Timeout      time.Duration
}

type Client struct {
	config  Config
	http    *resty.Client
	chain   chainio.ChainReader
	cache   *bigcache.BigCache
	metrics metrics.MetricsGenerator
	logger  sdklogging.Logger
}

func New(config Config, chain chainio.ChainReader, m metrics.MetricsGenerator, log sdklogging.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("relay url is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.URL, "/")).
		SetTimeout(config.Timeout).
		SetHeaders(map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
			"User-Agent":   "ap-bundler/" + version.Get(),
		})
	if config.APIKey != "" {
		httpClient.SetHeader("X-API-Key", config.APIKey)
	}

	c := &Client{
		config:  config,
		http:    httpClient,
		chain:   chain,
		metrics: metrics.EnsureMetrics(m),
		logger:  logger.EnsureLogger(log),
	}

	if config.FeeCacheTTL > 0 {
		cache, err := newFeeCache(config.FeeCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("fee cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

// newFeeCache sizes bigcache for a handful of short lived quotes; the
// default config preallocates hundreds of megabytes.
func newFeeCache(ttl time.Duration) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64
	cfg.CleanWindow = ttl
	cfg.Verbose = false
	return bigcache.New(context.Background(), cfg)
}

func (c *Client) Config() Config {
	return c.config
}

// Close releases the fee cache and idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

type Options struct {
	GasLimit  *big.Int
	FeeToken  *common.Address
	Sponsored bool
	Retries   int
}

type optionsJSON struct {
	GasLimit  string          `json:"gasLimit,omitempty"`
	FeeToken  *common.Address `json:"feeToken,omitempty"`
	Sponsored bool            `json:"isSponsored"`
	Retries   int             `json:"retries,omitempty"`
}

type submitRequest struct {
	Target  common.Address `json:"target"`
	Data    hexutil.Bytes  `json:"data"`
	ChainID string         `json:"chainId"`
	Options *optionsJSON   `json:"options,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"taskId"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Submit hands the encoded payload for target to the relay and returns the
// relay task id. Transport failures are never retried here.
func (c *Client) Submit(ctx context.Context, chainID *big.Int, target common.Address, payload []byte, opts *Options) (string, error) {
	body := submitRequest{
		Target:  target,
		Data:    payload,
		ChainID: chainID.String(),
	}
	if opts != nil {
		o := &optionsJSON{FeeToken: opts.FeeToken, Sponsored: opts.Sponsored, Retries: opts.Retries}
		if opts.GasLimit != nil {
			o.GasLimit = opts.GasLimit.String()
		}
		body.Options = o
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&submitResponse{}).
		SetError(&errorResponse{}).
		Post("/relay")
	if err != nil {
		return "", &model.NetworkError{Op: "submit", Err: err}
	}
	if resp.IsError() {
		return "", c.statusError("submit", resp)
	}

	result := resp.Result().(*submitResponse)
	if result.TaskID == "" {
		return "", &model.NetworkError{Op: "submit", StatusCode: resp.StatusCode(), Body: "missing taskId"}
	}

	c.logger.Info("relay task created", "taskId", result.TaskID, "target", target.Hex(), "chainId", chainID.String())
	return result.TaskID, nil
}

// statusError keeps the relay's message. resty only decodes the error body
// when the relay labels it as JSON, so it is decoded here otherwise.
func (c *Client) statusError(op string, resp *resty.Response) error {
	body := resp.String()
	if e, ok := resp.Error().(*errorResponse); ok && e.Message != "" {
		body = e.Message
	} else {
		var e errorResponse
		if err := json.Unmarshal(resp.Body(), &e); err == nil && e.Message != "" {
			body = e.Message
		}
	}
	return &model.NetworkError{Op: op, StatusCode: resp.StatusCode(), Body: body}
}

// Raw task states reported by the relay.
const (
	StateNotFound               = "NotFound"
	StateCheckPending           = "CheckPending"
	StateExecPending            = "ExecPending"
	StateWaitingForConfirmation = "WaitingForConfirmation"
	StateExecSuccess            = "ExecSuccess"
	StateExecReverted           = "ExecReverted"
	StateCancelled              = "Cancelled"
	StateBlacklisted            = "Blacklisted"
)

// The relay answers NotFound until a new task is indexed.
var taskStates = map[string]model.TaskState{
	StateNotFound:               model.TaskPending,
	StateCheckPending:           model.TaskPending,
	StateExecPending:            model.TaskPending,
	StateWaitingForConfirmation: model.TaskExecuting,
	StateExecSuccess:            model.TaskSuccess,
	StateExecReverted:           model.TaskReverted,
	StateCancelled:              model.TaskCancelled,
	StateBlacklisted:            model.TaskCancelled,
}

func MapTaskState(raw string) (model.TaskState, error) {
	state, ok := taskStates[raw]
	if !ok {
		return "", fmt.Errorf("unknown relay task state %q", raw)
	}
	return state, nil
}

// TaskStatus is one status report of a relay task.
type TaskStatus struct {
	TaskID           string
	RawState         string
	State            model.TaskState
	LastCheckMessage string
	TransactionHash  common.Hash
}

type statusResponse struct {
	Task struct {
		TaskID           string `json:"taskId"`
		TaskState        string `json:"taskState"`
		LastCheckMessage string `json:"lastCheckMessage"`
		TransactionHash  string `json:"transactionHash"`
	} `json:"task"`
}

func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("taskId", taskID).
		SetResult(&statusResponse{}).
		SetError(&errorResponse{}).
		Get("/tasks/status/{taskId}")
	if err != nil {
		return nil, &model.NetworkError{Op: "status", Err: err}
	}
	if resp.IsError() {
		return nil, c.statusError("status", resp)
	}

	task := resp.Result().(*statusResponse).Task
	state, err := MapTaskState(task.TaskState)
	if err != nil {
		c.logger.Debug("treating unknown relay state as pending", "taskId", taskID, "state", task.TaskState)
		state = model.TaskPending
	}

	status := &TaskStatus{
		TaskID:           taskID,
		RawState:         task.TaskState,
		State:            state,
		LastCheckMessage: task.LastCheckMessage,
	}
	if task.TransactionHash != "" {
		status.TransactionHash = common.HexToHash(task.TransactionHash)
	}
	return status, nil
}

type feeResponse struct {
	EstimatedFee string `json:"estimatedFee"`
}

// EstimatedFee converts gas into an amount of feeToken, the zero address
// meaning the native asset. Quotes are cached for FeeCacheTTL so repeated
// estimates of the same bundle agree.
func (c *Client) EstimatedFee(ctx context.Context, chainID *big.Int, feeToken common.Address, gasLimit, gasLimitL1 *big.Int) (*big.Int, error) {
	if gasLimit == nil {
		gasLimit = new(big.Int)
	}
	if gasLimitL1 == nil {
		gasLimitL1 = new(big.Int)
	}

	key := fmt.Sprintf("%s:%s:%s:%s", chainID, strings.ToLower(feeToken.Hex()), gasLimit, gasLimitL1)
	if c.cache != nil {
		if cached, err := c.cache.Get(key); err == nil {
			return new(big.Int).SetBytes(cached), nil
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("chainId", chainID.String()).
		SetQueryParams(map[string]string{
			"paymentToken":   feeToken.Hex(),
			"gasLimit":       gasLimit.String(),
			"gasLimitL1":     gasLimitL1.String(),
			"isHighPriority": strconv.FormatBool(c.config.HighPriority),
		}).
		SetResult(&feeResponse{}).
		SetError(&errorResponse{}).
		Get("/oracles/{chainId}/estimate")
	if err != nil {
		return nil, &model.NetworkError{Op: "estimate", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.statusError("estimate", resp)
	}

	fee, ok := new(big.Int).SetString(resp.Result().(*feeResponse).EstimatedFee, 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("invalid estimated fee %q", resp.Result().(*feeResponse).EstimatedFee)
	}

	if c.cache != nil {
		if err := c.cache.Set(key, fee.Bytes()); err != nil {
			c.logger.Warn("cannot cache fee quote", "key", key, "error", err)
		}
	}
	return fee, nil
}
