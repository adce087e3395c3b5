// Command syncplayd runs the synchronized-playback server: the core
// line-protocol listener, its optional stats snapshotter and wire-proxy
// front-end, and an admin HTTP surface for metrics and health.
//
// Grounded on the teacher's cmd/v1/session/main.go for overall shape
// (.env load, Gin router with cors+recovery, /metrics via promhttp,
// signal-based graceful shutdown); the hub/auth wiring that file did for
// video rooms is replaced here with roommanager/server wiring for sync
// rooms.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weebpoly/syncplay-go/internal/v1/config"
	"github.com/weebpoly/syncplay-go/internal/v1/health"
	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/middleware"
	"github.com/weebpoly/syncplay-go/internal/v1/ratelimit"
	"github.com/weebpoly/syncplay-go/internal/v1/roommanager"
	"github.com/weebpoly/syncplay-go/internal/v1/server"
	"github.com/weebpoly/syncplay-go/internal/v1/stats"
	"github.com/weebpoly/syncplay-go/internal/v1/tlscontext"
	"github.com/weebpoly/syncplay-go/internal/v1/wireproxy"
)

// wireProxyAdmissionRate matches the teacher's connection-limiter example
// rate of 20 dials per minute per IP; the core protocol listener itself
// is never rate-limited (spec.md §5).
const wireProxyAdmissionRate = "20-M"

func main() {
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := roommanager.New(cfg.IsolateRooms)
	tlsCtx := tlscontext.New(cfg.TLSCertPath)

	var snapshotter *stats.Snapshotter
	if cfg.StatsDBFile != "" {
		snapshotter, err = stats.Open(cfg.StatsDBFile, manager)
		if err != nil {
			logging.Fatal(ctx, "failed to open stats db", zap.Error(err))
		}
		defer snapshotter.Close()
		go snapshotter.Run(ctx)
	}

	srv := server.New(cfg, manager, tlsCtx)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			logging.Fatal(ctx, "core listener failed", zap.Error(err))
		}
	}()

	if cfg.WireProxyUpstream != "" {
		limiter, err := ratelimit.NewConnectionLimiter(wireProxyAdmissionRate)
		if err != nil {
			logging.Fatal(ctx, "failed to build wire-proxy admission limiter", zap.Error(err))
		}
		proxy := wireproxy.New(cfg.WireProxyUpstream, limiter, tlsCtx)
		go func() {
			if err := proxy.ListenAndServeTCP(ctx, cfg.WireProxyPort); err != nil {
				logging.Error(ctx, "wire-proxy TCP listener stopped", zap.Error(err))
			}
		}()
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var statsChecker health.StatsChecker
	if snapshotter != nil {
		statsChecker = snapshotter
	}
	healthHandler := health.NewHandler(statsChecker, tlsCtx)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	router.GET("/debug/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.ExportRooms())
	})

	adminSrv := &http.Server{
		Addr:    fmtAddr(cfg.AdminPort),
		Handler: router,
	}
	go func() {
		logging.Info(ctx, "admin server starting", zap.String("addr", adminSrv.Addr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "admin server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "admin server forced to shut down", zap.Error(err))
	}

	logging.Info(ctx, "exiting")
}

func fmtAddr(port int) string {
	return ":" + itoaPort(port)
}

func itoaPort(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
