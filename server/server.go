package server

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MaheshIMDev/Flick/cache"
	"github.com/MaheshIMDev/Flick/config"
	"github.com/MaheshIMDev/Flick/handlers"
	"github.com/MaheshIMDev/Flick/kafka"
	"github.com/MaheshIMDev/Flick/limiter"
	"github.com/MaheshIMDev/Flick/metrics"
	custommiddleware "github.com/MaheshIMDev/Flick/middleware"
	"github.com/MaheshIMDev/Flick/models"
	"github.com/MaheshIMDev/Flick/services"
)

const sweepInterval = 60 * time.Second

type Server struct {
	Echo          *echo.Echo
	DB            *gorm.DB
	Store         cache.Store
	Config        *config.Config
	Hub           *handlers.Hub
	AuthHandler   *handlers.AuthHandler
	ChatHandler   *handlers.ChatHandler
	SocketHandler *handlers.SocketHandler

	calls    *services.CallService
	notifier kafka.Notifier
	cancel   context.CancelFunc
}

func NewServer() *Server {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		log.Fatal("Failed to auto-migrate database:", err)
	}

	// Redis 不可用时退回进程内缓存，单节点降级运行
	var store cache.Store
	store, err = cache.NewRedis(&cfg.Redis)
	if err != nil {
		log.Warnf("Redis unavailable, falling back to in-memory cache: %v", err)
		store = cache.NewMemory()
	}

	notifier := newNotifier(&cfg.Kafka)

	// 初始化 Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.PATCH},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentLength},
		MaxAge:           86400,
	}))

	authService := services.NewAuthService(db, &cfg.Auth)
	registryService := services.NewRegistryService(store)
	presenceService := services.NewPresenceService(store, db)
	typingService := services.NewTypingService(store)
	unreadService := services.NewUnreadService(store)
	conversationService := services.NewConversationService(db)
	callService := services.NewCallService(db, store, registryService)
	rateLimiter := limiter.NewManager(store, &limiter.FixedWindowStrategy{})

	hub := handlers.NewHub(store)
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(conversationService, presenceService)
	socketHandler := handlers.NewSocketHandler(
		hub,
		registryService,
		presenceService,
		typingService,
		unreadService,
		conversationService,
		callService,
		rateLimiter,
		notifier,
	)

	metrics.MustRegister()

	s := &Server{
		Echo:          e,
		DB:            db,
		Store:         store,
		Config:        &cfg,
		Hub:           hub,
		AuthHandler:   authHandler,
		ChatHandler:   chatHandler,
		SocketHandler: socketHandler,
		calls:         callService,
		notifier:      notifier,
	}

	// --- 设置路由 ---
	authMiddleware := custommiddleware.AuthMiddleware(authService)
	s.SetupRoutes(authMiddleware)
	return s
}

// newNotifier 根据配置创建离线推送生产者，未配置 Kafka 时返回空实现
func newNotifier(cfg *config.KafkaConfig) kafka.Notifier {
	if len(cfg.Brokers) == 0 || cfg.NotifyTopic == "" {
		log.Info("Kafka not configured, offline push notifications disabled")
		return kafka.NopNotifier{}
	}

	var (
		saramaCfg *sarama.Config
		err       error
	)
	switch cfg.Mechanism {
	case "SCRAM-SHA-256", "SCRAM-SHA-512":
		saramaCfg, err = kafka.NewSaramaConfigWithSCRAM(cfg, cfg.Mechanism)
	default:
		saramaCfg, err = kafka.NewSaramaConfig(cfg)
	}
	if err != nil {
		log.Warnf("Kafka config invalid, offline push notifications disabled: %v", err)
		return kafka.NopNotifier{}
	}

	producer, err := kafka.NewProducer(cfg.Brokers, cfg.NotifyTopic, saramaCfg)
	if err != nil {
		log.Warnf("Kafka unreachable, offline push notifications disabled: %v", err)
		return kafka.NopNotifier{}
	}
	return producer
}

func (s *Server) Start(addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// 跨进程广播订阅循环 + 未接来电清扫器
	go s.Hub.Run(ctx)
	go s.calls.RunSweeper(ctx, sweepInterval)

	log.Fatal(s.Echo.Start(addr))
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.notifier.Close(); err != nil {
		log.Warnf("Failed to close Kafka producer: %v", err)
	}
	if err := s.Store.Close(); err != nil {
		log.Warnf("Failed to close cache: %v", err)
	}
	return s.Echo.Shutdown(ctx)
}
