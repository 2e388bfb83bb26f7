package http

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/csv"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/middleware"
)

// WalletService is what the API drives, implemented by *wallet.Manager.
type WalletService interface {
	State() wallet.State
	Phase() wallet.Phase
	Connect(ctx context.Context, kind wallet.Kind) error
	Disconnect(ctx context.Context) error
	SwitchChain(ctx context.Context) error
	RefreshBalance(ctx context.Context) (*big.Int, error)
}

// HistoryReader lists past wallet events, newest first.
type HistoryReader interface {
	Recent(ctx context.Context, account string, limit int) ([]wallet.Event, error)
}

// Limiter admits or denies one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Server is the local control API of the wallet link.
type Server struct {
	wallet  WalletService
	history HistoryReader
	limiter Limiter
	addr    string
	timeout time.Duration
	srv     *http.Server
}

func NewServer(w WalletService) *Server {
	return &Server{wallet: w, addr: ":8080"}
}

// WithHistory serves GET /wallet/history from h.
func (s *Server) WithHistory(h HistoryReader) *Server {
	s.history = h
	return s
}

// WithLimiter rate limits the wallet actions per client ip.
func (s *Server) WithLimiter(l Limiter) *Server {
	s.limiter = l
	return s
}

func (s *Server) Apply(c *config.Configuration) {
	s.addr = c.HTTP.Addr
	s.timeout = time.Duration(c.HTTP.RequestTimeout) * time.Second
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP(s.timeout))
	router.GET("/wallet", s.getWallet)
	if s.history != nil {
		router.GET("/wallet/history", s.getHistory)
	}
	actions := router.Group("/wallet")
	if s.limiter != nil {
		actions.Use(limitRequests(s.limiter))
	}
	actions.POST("/connect/:kind", s.connect)
	actions.POST("/disconnect", s.disconnect)
	actions.POST("/switch-chain", s.switchChain)
	actions.POST("/balance/refresh", s.refreshBalance)
	return router
}

func (s *Server) Start(context.Context) {
	s.srv = &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		log.Infof("http - listening on %v", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(errors.WrapAndReport(err, "http server"))
		}
	}()
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("http - shutdown: %v", err)
	}
}

func (s *Server) getWallet(ctx *gin.Context) {
	ok(ctx, s.view())
}

func (s *Server) connect(ctx *gin.Context) {
	kind, err := wallet.ParseKind(ctx.Param("kind"))
	if err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	if err := s.wallet.Connect(ctx.Request.Context(), kind); err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, s.view())
}

func (s *Server) disconnect(ctx *gin.Context) {
	if err := s.wallet.Disconnect(ctx.Request.Context()); err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, s.view())
}

func (s *Server) switchChain(ctx *gin.Context) {
	if err := s.wallet.SwitchChain(ctx.Request.Context()); err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, s.view())
}

func (s *Server) refreshBalance(ctx *gin.Context) {
	if _, err := s.wallet.RefreshBalance(ctx.Request.Context()); err != nil {
		failWith(ctx, err)
		return
	}
	ok(ctx, s.view())
}

func (s *Server) getHistory(ctx *gin.Context) {
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(ctx, http.StatusBadRequest, errors.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	events, err := s.history.Recent(ctx.Request.Context(), ctx.Query("account"), limit)
	if err != nil {
		failWith(ctx, err)
		return
	}
	if ctx.Query("format") == "csv" {
		ctx.Header("Content-Type", "text/csv; charset=utf-8")
		ctx.Header("Content-Disposition", `attachment; filename="wallet-history.csv"`)
		ctx.Status(http.StatusOK)
		if err := csv.WriteEvents(ctx.Writer, events); err != nil {
			log.Warnf("http - write history csv: %v", err)
		}
		return
	}
	ok(ctx, events)
}

func limitRequests(l Limiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		allowed, retry, err := l.Allow(ctx.Request.Context(), ctx.ClientIP())
		if err != nil {
			// limiter store down, let the request through
			log.Warnf("http - %v", err)
			ctx.Next()
			return
		}
		if !allowed {
			ctx.Header("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			fail(ctx, http.StatusTooManyRequests, errors.New("too many requests"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func ok(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

func fail(ctx *gin.Context, status int, err error) {
	ctx.JSON(status, map[string]interface{}{
		"code": status * 10,
		"msg":  err.Error(),
	})
}

func failWith(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, wallet.ErrInjectedUnavailable):
		fail(ctx, http.StatusNotFound, err)
	case errors.Is(err, wallet.ErrNotConnected), errors.Is(err, wallet.ErrChainSwitchDisabled):
		fail(ctx, http.StatusConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		fail(ctx, http.StatusGatewayTimeout, err)
	case errors.Is(err, wallet.ErrConnection), errors.Is(err, wallet.ErrChainSwitch),
		errors.Is(err, wallet.ErrBalanceFetch):
		fail(ctx, http.StatusBadGateway, err)
	default:
		fail(ctx, http.StatusInternalServerError, err)
	}
}
