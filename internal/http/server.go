package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/meta"
	"moff.io/moff-wallet/pkg/log/middleware"
)

const qrCodeSize = 256

// WalletAPI is what the operator can do with the wallet.
type WalletAPI interface {
	State() wallet.State
	Pair(ctx context.Context, uri string) error
	ApprovePendingRequest(ctx context.Context) error
	RejectPendingRequest(ctx context.Context) error
	Disconnect(ctx context.Context, topic string) error
}

// Server is the operator HTTP surface of the wallet.
type Server struct {
	wallet  WalletAPI
	addr    string
	timeout time.Duration
	srv     *http.Server
}

func NewServer(w WalletAPI) *Server {
	return &Server{wallet: w, addr: ":8080"}
}

// Apply implements starter.Configurable.
func (s *Server) Apply(c *config.Configuration) {
	if c == nil {
		return
	}
	s.addr = c.HTTP.Address
	s.timeout = c.HTTP.RequestTimeout
}

// Start implements starter.Startable. It serves in the background until Stop.
func (s *Server) Start(_ context.Context) {
	s.srv = &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		log.Infof("operator api listening on %v", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
}

// Stop implements starter.Stopable.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Error(errors.WrapAndReport(err, "shutdown operator api"))
	}
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP(s.timeout))

	group := router.Group("/wallet")
	group.GET("", s.getState)
	group.GET("/qrcode", s.getQRCode)
	group.POST("/pair", s.pair)
	group.GET("/request", s.getPendingRequest)
	group.POST("/request/accept", s.acceptRequest)
	group.POST("/request/reject", s.rejectRequest)
	group.POST("/disconnect", s.disconnect)
	return router
}

func action(ctx *gin.Context, name string) {
	meta.WithValue(ctx.Request.Context(), middleware.ActionKey{}, name)
}

func abort(ctx *gin.Context, status int, err error) {
	ctx.JSON(status, map[string]interface{}{
		"error": err.Error(),
	})
}

func (s *Server) getState(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.wallet.State())
}

func (s *Server) getQRCode(ctx *gin.Context) {
	address := s.wallet.State().Address
	if address == "" {
		abort(ctx, http.StatusNotFound, wallet.ErrNoIdentity)
		return
	}
	png, err := qrcode.Encode(address, qrcode.Medium, qrCodeSize)
	if err != nil {
		abort(ctx, http.StatusInternalServerError, errors.WrapAndReport(err, "encode address qrcode"))
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

type pairRequest struct {
	URI string `json:"uri" binding:"required"`
}

func (s *Server) pair(ctx *gin.Context) {
	action(ctx, "pair")
	var req pairRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	if err := s.wallet.Pair(ctx.Request.Context(), req.URI); err != nil {
		abort(ctx, statusOf(err), err)
		return
	}
	ctx.JSON(http.StatusOK, s.wallet.State())
}

func (s *Server) getPendingRequest(ctx *gin.Context) {
	pending := s.wallet.State().Pending
	if pending == nil {
		abort(ctx, http.StatusNotFound, wallet.ErrNoPendingRequest)
		return
	}
	ctx.JSON(http.StatusOK, pending)
}

func (s *Server) acceptRequest(ctx *gin.Context) {
	action(ctx, "accept_request")
	s.answer(ctx, s.wallet.ApprovePendingRequest)
}

func (s *Server) rejectRequest(ctx *gin.Context) {
	action(ctx, "reject_request")
	s.answer(ctx, s.wallet.RejectPendingRequest)
}

func (s *Server) answer(ctx *gin.Context, fn func(context.Context) error) {
	pending := s.wallet.State().Pending
	if err := fn(ctx.Request.Context()); err != nil {
		abort(ctx, statusOf(err), err)
		return
	}
	resp := map[string]interface{}{"success": true}
	if pending != nil {
		resp["id"] = pending.ID
	}
	ctx.JSON(http.StatusOK, resp)
}

type disconnectRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) disconnect(ctx *gin.Context) {
	action(ctx, "disconnect")
	var req disconnectRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			abort(ctx, http.StatusBadRequest, err)
			return
		}
	}
	if err := s.wallet.Disconnect(ctx.Request.Context(), req.Topic); err != nil {
		abort(ctx, statusOf(err), err)
		return
	}
	ctx.JSON(http.StatusOK, s.wallet.State())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, wallet.ErrEmptyURI), errors.Is(err, walletconnect.ErrMalformedURI):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrNoPendingRequest), errors.Is(err, wallet.ErrNoIdentity):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrClientNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
