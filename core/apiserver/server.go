// Package apiserver exposes a bundling session over HTTP.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync/atomic"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AvaProtocol/ap-bundler/core/auth"
	"github.com/AvaProtocol/ap-bundler/core/session"
	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
	"github.com/AvaProtocol/ap-bundler/storage"
	"github.com/AvaProtocol/ap-bundler/version"
)

type HttpJsonResp[T any] struct {
	Data T `json:"data"`
}

type HttpErrorResp struct {
	Error string `json:"error"`
}

// Session is the part of session.Controller the server drives.
type Session interface {
	Status() session.Status
	Prepare(ctx context.Context, inputs session.Inputs) (*session.Prepared, error)
	Submit(ctx context.Context, inputs session.Inputs, onReceipt session.ReceiptFunc, onOffchain session.OffchainFunc) error
}

type SettingsStore interface {
	Snapshot() model.BundleSettings
	Apply(patch map[string]interface{}) (model.BundleSettings, error)
}

type Options struct {
	Session  Session
	Settings SettingsStore
	// History backs /submissions. Optional.
	History  storage.Storage
	Account  common.Address
	Registry *prometheus.Registry
	// JwtSecret turns on API key checks for everything but /up, /version
	// and /metrics.
	JwtSecret []byte
	Logger    sdklogging.Logger
}

type Server struct {
	echo     *echo.Echo
	session  Session
	settings SettingsStore
	history  storage.Storage
	account  common.Address
	secret   []byte
	logger   sdklogging.Logger
	running  atomic.Bool

	// ctx outlives requests, background submissions run on it
	ctx    context.Context
	cancel context.CancelFunc
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func New(opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:     echo.New(),
		session:  opts.Session,
		settings: opts.Settings,
		history:  opts.History,
		account:  opts.Account,
		secret:   opts.JwtSecret,
		logger:   logger.EnsureLogger(opts.Logger),
		ctx:      ctx,
		cancel:   cancel,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/up", s.up)
	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &HttpJsonResp[map[string]string]{
			Data: map[string]string{"version": version.Get(), "revision": version.Commit()},
		})
	})
	read, write := s.requireRole(auth.ReadonlyRole), s.requireRole(auth.AdminRole)
	e.GET("/status", s.status, read)
	e.POST("/prepare", s.prepare, write)
	e.POST("/submit", s.submit, write)
	e.GET("/settings", s.getSettings, read)
	e.PUT("/settings", s.putSettings, write)
	e.GET("/submissions", s.submissions, read)

	if opts.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.running.Store(true)
	s.logger.Info("HTTP server listening", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.running.Store(false)
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.cancel()
	return s.echo.Shutdown(ctx)
}

// SetRunning flips the /up answer, for servers driven through Handler.
func (s *Server) SetRunning(running bool) {
	s.running.Store(running)
}

// requireRole is a no-op when no secret is configured.
func (s *Server) requireRole(role auth.ApiRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(s.secret) == 0 {
				return next(c)
			}

			key, err := auth.FromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, &HttpErrorResp{Error: err.Error()})
			}
			claims, err := auth.VerifyAPIKey(s.secret, key)
			if err != nil {
				s.logger.Debug("rejected api key", "error", err)
				return c.JSON(http.StatusUnauthorized, &HttpErrorResp{Error: auth.ErrorInvalidToken.Error()})
			}
			if !claims.Allows(role) {
				return c.JSON(http.StatusForbidden, &HttpErrorResp{Error: auth.ErrorMissingRole.Error()})
			}
			c.Set("apiKeySubject", claims.Subject)
			return next(c)
		}
	}
}

func (s *Server) up(c echo.Context) error {
	if s.running.Load() {
		return c.String(http.StatusOK, "up")
	}
	return c.String(http.StatusServiceUnavailable, "pending...")
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, &HttpJsonResp[session.Status]{Data: s.session.Status()})
}

type InputsRequest struct {
	RequiredPayment    string `json:"requiredPayment" validate:"omitempty,number"`
	RequiredFlowAmount string `json:"requiredFlowAmount" validate:"omitempty,number"`
	Spender            string `json:"spender" validate:"omitempty,eth_addr"`
	FlowOperator       string `json:"flowOperator" validate:"omitempty,eth_addr"`
	BusinessCall       string `json:"businessCall" validate:"omitempty,hexadecimal"`
	RefundReceiver     string `json:"refundReceiver" validate:"omitempty,eth_addr"`
	RefundAmount       string `json:"refundAmount" validate:"omitempty,number"`
}

// Inputs converts the request. Empty fields stay unresolved.
func (r *InputsRequest) Inputs() (session.Inputs, error) {
	var in session.Inputs
	var err error

	if in.RequiredPayment, err = parseAmount("requiredPayment", r.RequiredPayment); err != nil {
		return in, err
	}
	if in.RequiredFlowAmount, err = parseAmount("requiredFlowAmount", r.RequiredFlowAmount); err != nil {
		return in, err
	}
	if in.RefundAmount, err = parseAmount("refundAmount", r.RefundAmount); err != nil {
		return in, err
	}
	if r.Spender != "" {
		spender := common.HexToAddress(r.Spender)
		in.Spender = &spender
	}
	if r.FlowOperator != "" {
		operator := common.HexToAddress(r.FlowOperator)
		in.FlowOperator = &operator
	}
	if r.RefundReceiver != "" {
		in.RefundReceiver = common.HexToAddress(r.RefundReceiver)
	}
	if r.BusinessCall != "" {
		if in.BusinessCall, err = hexutil.Decode(r.BusinessCall); err != nil {
			return in, fmt.Errorf("businessCall: %w", err)
		}
	}
	return in, nil
}

func parseAmount(field, v string) (*big.Int, error) {
	if v == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non negative integer", field)
	}
	return n, nil
}

func (s *Server) bindInputs(c echo.Context) (session.Inputs, error) {
	var req InputsRequest
	if err := c.Bind(&req); err != nil {
		return session.Inputs{}, err
	}
	if err := c.Validate(&req); err != nil {
		return session.Inputs{}, err
	}
	in, err := req.Inputs()
	if err != nil {
		return session.Inputs{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return in, nil
}

func (s *Server) prepare(c echo.Context) error {
	in, err := s.bindInputs(c)
	if err != nil {
		return err
	}

	prepared, err := s.session.Prepare(c.Request().Context(), in)
	if err != nil {
		return s.errorJSON(c, err)
	}
	if prepared == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, &HttpJsonResp[*session.Prepared]{Data: prepared})
}

type SubmitResult struct {
	TxHash      common.Hash `json:"txHash,omitempty"`
	BlockNumber string      `json:"blockNumber,omitempty"`
	Offchain    bool        `json:"offchain,omitempty"`
}

// submit runs in the background unless ?wait=true, in which case the
// response carries the outcome.
func (s *Server) submit(c echo.Context) error {
	in, err := s.bindInputs(c)
	if err != nil {
		return err
	}
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))

	if s.session.Status().IsSubmitting {
		return s.errorJSON(c, session.ErrSubmissionInFlight)
	}

	var result SubmitResult
	onReceipt := func(r *types.Receipt) {
		result.TxHash = r.TxHash
		if r.BlockNumber != nil {
			result.BlockNumber = r.BlockNumber.String()
		}
	}
	onOffchain := func(ctx context.Context) error {
		result.Offchain = true
		s.logger.Info("off-chain only update, nothing to relay")
		return nil
	}

	if !wait {
		go func() {
			if err := s.session.Submit(s.ctx, in, onReceipt, onOffchain); err != nil {
				s.logger.Warn("background submission failed", "error", err)
			}
		}()
		return c.JSON(http.StatusAccepted, &HttpJsonResp[session.Status]{Data: s.session.Status()})
	}

	if err := s.session.Submit(c.Request().Context(), in, onReceipt, onOffchain); err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, &HttpJsonResp[SubmitResult]{Data: result})
}

func (s *Server) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, &HttpJsonResp[model.BundleSettings]{Data: s.settings.Snapshot()})
}

func (s *Server) putSettings(c echo.Context) error {
	patch := map[string]interface{}{}
	if err := c.Bind(&patch); err != nil {
		return err
	}
	updated, err := s.settings.Apply(patch)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &HttpErrorResp{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, &HttpJsonResp[model.BundleSettings]{Data: updated})
}

func (s *Server) submissions(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusOK, &HttpJsonResp[[]*session.SubmissionRecord]{Data: []*session.SubmissionRecord{}})
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non negative integer")
		}
		limit = n
	}

	records, err := session.ListSubmissions(s.history, s.account, limit)
	if err != nil {
		s.logger.Error("cannot list submissions", "error", err)
		return c.JSON(http.StatusInternalServerError, &HttpErrorResp{Error: model.InternalError})
	}
	return c.JSON(http.StatusOK, &HttpJsonResp[[]*session.SubmissionRecord]{Data: records})
}

// errorJSON maps session and relay errors to a status code and a sanitized
// single line message.
func (s *Server) errorJSON(c echo.Context, err error) error {
	var (
		buildErr *model.BuildError
		estErr   *model.EstimationError
		rejected *model.SigningRejected
		relayErr *model.RelayError
		netErr   *model.NetworkError
		code     int
	)
	switch {
	case errors.Is(err, session.ErrSubmissionInFlight), errors.Is(err, session.ErrNotReady):
		code = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.As(err, &buildErr), errors.As(err, &estErr), errors.As(err, &relayErr):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &rejected):
		code = http.StatusForbidden
	case errors.As(err, &netErr):
		code = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusInternalServerError
	}
	return c.JSON(code, &HttpErrorResp{Error: model.SanitizeError(err)})
}
