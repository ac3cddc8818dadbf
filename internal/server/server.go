package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/elskow/crm-auth/internal/api"
	"github.com/elskow/crm-auth/internal/auth"
	"github.com/elskow/crm-auth/internal/config"
	"github.com/elskow/crm-auth/internal/maintenance"
	"github.com/elskow/crm-auth/internal/ratelimit"
)

const defaultShutdownTimeout = 10 * time.Second

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	router     chi.Router
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
}

type Params struct {
	fx.In

	Config             *config.AppConfig
	Logger             *zap.Logger
	AuthHandler        *auth.Handler
	AuthMiddleware     *auth.AuthMiddleware
	Limiter            *ratelimit.Limiter
	MaintenanceHandler *maintenance.Handler
}

func NewServer(p Params) *Server {
	router := newRouter(p)

	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(loggingInterceptor(p.Logger)),
	}
	if p.Config.GRPC.MaxReceiveMessageSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(p.Config.GRPC.MaxReceiveMessageSize))
	}
	if p.Config.GRPC.MaxSendMessageSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(p.Config.GRPC.MaxSendMessageSize))
	}

	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if p.Config.GRPC.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		config: p.Config,
		log:    p.Logger,
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port),
			Handler:      router,
			ReadTimeout:  p.Config.Server.ReadTimeout,
			WriteTimeout: p.Config.Server.WriteTimeout,
		},
		grpcServer: grpcServer,
		health:     healthServer,
	}
}

func newRouter(p Params) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(p.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limits := p.Config.RateLimit
	r.Mount(api.AuthPrefix, p.AuthHandler.Routes(auth.RouteOptions{
		LoginLimit:         ratelimit.Middleware(p.Limiter, "login", limits.Login, ratelimit.ClientIP, p.Logger),
		PasswordResetLimit: ratelimit.Middleware(p.Limiter, "password_reset", limits.PasswordReset, ratelimit.ClientIP, p.Logger),
	}))
	r.Mount(api.AdminPrefix, p.MaintenanceHandler.Routes(
		p.AuthMiddleware.Authenticate,
		p.AuthMiddleware.RequireRole(auth.RoleAdmin),
	))

	return r
}

// Handler exposes the HTTP router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartHTTP() error {
	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve http: %w", err)
	}
	return nil
}

func (s *Server) StartGRPC() error {
	addr := fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.log.Info("Starting gRPC health server", zap.String("address", addr))
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve grpc: %w", err)
	}
	return nil
}

func serverConfigToField(config *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", config.Environment)
		enc.AddBool("secure_cookies", config.Auth.SecureCookies)
		enc.AddDuration("access_token_duration", config.Auth.AccessTokenDuration)
		enc.AddDuration("refresh_token_duration", config.Auth.RefreshTokenDuration)
		enc.AddInt("login_max_requests", config.RateLimit.Login.MaxRequests)
		enc.AddBool("reflection_enabled", config.GRPC.EnableReflection)
		return nil
	})
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down servers")
	s.health.Shutdown()

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.grpcServer.GracefulStop()
	return err
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			return resp, err
		}
		log.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)))
		return resp, nil
	}
}
