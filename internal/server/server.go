package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/demart-backend/internal/config"
	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/handler"
	appmw "github.com/shinyyama/demart-backend/internal/middleware"
	"github.com/shinyyama/demart-backend/internal/realtime"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/shinyyama/demart-backend/internal/service"
	"github.com/shinyyama/demart-backend/internal/settlement"
	"gorm.io/gorm"
)

// Options carries the collaborators that differ between production, local
// runs and tests.
type Options struct {
	Verifier appmw.TokenVerifier
	// Users may be nil when no identity provider is configured.
	Users service.UserDirectory
	// Delay defaults to a uniform draw between the configured settlement delays.
	Delay settlement.DelayFunc
}

type Server struct {
	e      *echo.Echo
	hub    *realtime.Hub
	worker *settlement.Worker
}

func New(cfg *config.Config, conn *gorm.DB, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError || v.Error != nil {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	allow := originAllowed(cfg.AllowedOriginSuffix)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.HeaderUserID},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			return allow(origin), nil
		},
	}))

	delay := opts.Delay
	if delay == nil {
		delay = settlement.UniformDelay(cfg.Settlement.MinDelay, cfg.Settlement.MaxDelay)
	}

	hub := realtime.NewHub()
	catalog := service.NewCatalogService(repository.NewCatalogRepository(conn))
	convSvc := service.NewConversationService(repository.NewConversationRepository(conn), catalog, opts.Users, hub)
	coord := service.NewCoordinator(convSvc, catalog, opts.Users)

	jobs := repository.NewSettlementJobRepository(conn)
	sim := settlement.NewSimulator(jobs, delay)
	orderSvc := service.NewOrderService(repository.NewOrderRepository(conn), catalog, convSvc, sim, coord, db.NewTxManager(conn))
	worker := settlement.NewWorker(jobs, orderSvc, settlement.WorkerConfig{
		PollInterval: cfg.Settlement.PollInterval,
		Lease:        cfg.Settlement.Lease,
		BatchSize:    cfg.Settlement.BatchSize,
	})

	orderHandler := handler.NewOrderHandler(orderSvc, catalog, opts.Users)
	convHandler := handler.NewConversationHandler(convSvc, coord)
	userHandler := handler.NewUserHandler(opts.Users)
	socketHandler := handler.NewSocketHandler(hub, convSvc, func(r *http.Request) bool {
		return allow(r.Header.Get("Origin"))
	})
	authMw := appmw.NewAuthMiddleware(opts.Verifier)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    cfg.GitSHA,
			"build_time": cfg.BuildTime,
		})
	})

	api := e.Group("/api", authMw.RequireAuth)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.PATCH("/orders/:id", orderHandler.Update)
	api.POST("/orders/:id/pay", orderHandler.Pay)
	api.POST("/conversations", convHandler.Create)
	api.GET("/conversations", convHandler.List)
	api.GET("/conversations/:id", convHandler.Get)
	api.POST("/conversations/:id/purchase-intent", convHandler.PurchaseIntent)
	api.GET("/messages", convHandler.ListMessages)
	api.POST("/messages", convHandler.SendMessage)
	api.GET("/users/:uid/public", userHandler.GetPublic)
	api.GET("/ws", socketHandler.Serve)

	return &Server{e: e, hub: hub, worker: worker}
}

// requestContext copies the request id set by middleware.RequestID into the
// request context so services can log with it.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := reqctx.WithRequestID(c.Request().Context(), rid)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// originAllowed accepts localhost and hosts ending in suffix. Requests with
// no Origin header come from non-browser clients and are let through.
func originAllowed(suffix string) func(origin string) bool {
	return func(origin string) bool {
		if origin == "" {
			return true
		}
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return suffix != "" && strings.HasSuffix(u.Hostname(), suffix)
	}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Worker is the settlement worker bound to this server's database.
func (s *Server) Worker() *settlement.Worker {
	return s.worker
}

func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("starting server")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and hangs up every websocket, which the
// http server does not track once they are hijacked.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.e.Shutdown(ctx)
}
