package main

// @title HomeMatch Financing API
// @version 1.0.0
// @description HomeMatch 融资会话后端 API 文档
// @contact.name API Support
// @contact.email support@example.com
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 使用格式：Bearer {token}

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"homematch/backend/internal/auth"
	jwtpkg "homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/config"
	"homematch/backend/internal/health"
	"homematch/backend/internal/logger"
	"homematch/backend/internal/mailer"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/service"
	"homematch/backend/internal/smtp"
	"homematch/backend/internal/storage/filesystem"
	"homematch/backend/internal/storage/postgres"
	"homematch/backend/internal/storage/hybrid"
	httptransport "homematch/backend/internal/transport/http"
	"homematch/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与入站 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting homematch server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("inbound_domain", cfg.Inbound.Domain),
	)

	// 存储层：数据库 + Redis，开发环境可退化为纯内存
	store, cache, err := hybrid.Open(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer func() {
		_ = store.Close()
		_ = cache.Close()
	}()

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, cache, log)

	// PostgreSQL 部署时额外以独立连接池探测就绪状态，
	// 避免 GORM 连接异常时探针给出假阳性
	if cfg.Database.Type == "postgres" {
		if pgClient, err := postgres.NewClient(&cfg.Database, log); err == nil {
			defer pgClient.Close()
			healthChecker.AddReadinessCheck("database-pool", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return pgClient.Ping(ctx)
			})
		} else {
			log.Warn("failed to create postgres health client", zap.Error(err))
		}
	}

	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0))
	alertManager.AddRule(monitoring.DatabaseConnectionRule(store))
	alertManager.AddRule(monitoring.DedupCacheRule(cache))

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	mail := mailer.New(cfg.Outbound, log)
	codec := mailreply.NewCodec(cfg.Inbound.Domain)

	// 服务层。Hub 的订阅鉴权依赖会话服务，会话服务的通知器又要
	// 经 Hub 推送，所以 Pusher 在 Hub 创建之后再注入。
	notifier := service.NewNotifier(codec, cfg.Server.PublicURL, mail, nil, metrics, log)
	conversations := service.NewConversationService(store, notifier, cfg.Chat, metrics, log)
	financing := service.NewFinancingService(store, store, log)
	inbound := service.NewInboundService(store, cache, codec, notifier, cfg.Chat, metrics, log)
	authService := auth.NewService(store, store, cache, jwtManager, mail, cfg.OTP, metrics, log)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, conversations, metrics, log)
	notifier.SetPusher(wsHub)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		AuthService:   authService,
		Financing:     financing,
		Conversations: conversations,
		Inbound:       inbound,
		JWTManager:    jwtManager,
		WebSocketHub:  wsHub,
		Store:         store,
		Health:        healthChecker,
		Metrics:       metrics,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 入站 SMTP：bind_addr 置空表示回信只走服务商 webhook
	var smtpServer *smtp.Server
	if cfg.Inbound.BindAddr != "" {
		var archive *filesystem.Archive
		if cfg.Inbound.ArchiveDir != "" {
			archive, err = filesystem.NewArchive(cfg.Inbound.ArchiveDir)
			if err != nil {
				log.Warn("failed to initialize raw email archive, continuing without it", zap.Error(err))
				archive = nil
			} else {
				log.Info("raw email archive initialized", zap.String("path", cfg.Inbound.ArchiveDir))
			}
		}
		smtpBackend := smtp.NewBackend(codec, store, inbound, archive, cfg.Inbound.MaxSize, log)
		smtpServer = smtp.NewServer(cfg.Inbound, smtpBackend, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting inbound SMTP server",
				zap.String("address", cfg.Inbound.BindAddr),
				zap.String("domain", "inbound."+cfg.Inbound.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				select {
				case <-groupCtx.Done():
					return nil
				default:
				}
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		log.Info("starting alert monitoring")
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
