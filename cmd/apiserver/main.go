package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"devconnect/internal/config"
	"devconnect/internal/devtypes"
	"devconnect/internal/handlers/apiserver"
	appKafka "devconnect/internal/kafka"
	kafkahandlers "devconnect/internal/kafka/handlers"
	"devconnect/internal/middleware"
	"devconnect/internal/realtime"
	appRedis "devconnect/internal/redis"
	"devconnect/internal/services"
	"devconnect/internal/storage"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：API 服务器数据库表迁移可能失败: %v", err)
	} else {
		log.Println("API 服务器数据库表迁移成功。")
	}

	// 3. 初始化 Redis Client
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err = redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	// 4. 初始化 TokenBlacklist 服务
	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)

	// 5. 初始化 Repositories
	profileRepo := storage.NewGormProfileRepository(db)
	requestRepo := storage.NewGormConnectionRequestRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	projectRepo := storage.NewGormProjectRepository(db)

	// 6. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 7. 初始化 realtime hub
	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Stop()

	// 8. 初始化 Services
	authService := services.NewAuthService(profileRepo, tokenBlacklistService, cfg)
	profileService := services.NewProfileService(profileRepo, hub)
	projectService := services.NewProjectService(projectRepo, profileRepo)
	connectionService := services.NewConnectionService(profileRepo, requestRepo, connRepo, kfkProducer, cfg.Kafka, hub)

	// 8.1 初始化存储服务
	var storageService devtypes.StorageService
	storageBaseURL := "/uploads" // Base URL for accessing uploaded files
	if cfg.Storage.Type == "local" {
		storageService, err = storage.NewLocalStorageService(cfg.Storage, storageBaseURL)
		if err != nil {
			log.Fatalf("无法初始化本地存储服务: %v", err)
		}
		log.Println("本地存储服务初始化成功。")
	} else {
		log.Fatalf("不支持的存储类型: %s", cfg.Storage.Type)
	}

	// 9. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(authService)
	profileHandler := apiserver.NewProfileHandler(profileService, projectService, connectionService)
	projectHandler := apiserver.NewProjectHandler(projectService)
	connectionHandler := apiserver.NewConnectionHandler(connectionService)
	uploadHandler := apiserver.NewUploadHandler(storageService, cfg.Storage)

	// 10. 设置 HTTP 路由
	r := mux.NewRouter()

	// 10.1 认证路由
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklistService)

	// 10.2 API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// 用户资料路由
	apiRouter.HandleFunc("/me", profileHandler.GetMe).Methods(http.MethodGet)
	apiRouter.HandleFunc("/me", profileHandler.UpdateMe).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/profiles/search", profileHandler.Search).Methods(http.MethodGet)
	// 认证访问资料页时附带派生的连接状态
	apiRouter.HandleFunc("/profiles/{username}", profileHandler.GetByUsername).Methods(http.MethodGet)

	// 项目路由 (写操作需要认证)
	apiRouter.HandleFunc("/projects", projectHandler.Create).Methods(http.MethodPost)
	apiRouter.HandleFunc("/projects/{projectID:[0-9]+}", projectHandler.Update).Methods(http.MethodPut)

	// 文件上传路由
	apiRouter.HandleFunc("/upload", uploadHandler.UploadFileHandler).Methods(http.MethodPost)

	// 连接工作流路由
	connectionRouter := apiRouter.PathPrefix("/connections").Subrouter()
	connectionRouter.HandleFunc("", connectionHandler.ListConnections).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/{connectionID:[0-9]+}", connectionHandler.RemoveConnection).Methods(http.MethodDelete)
	connectionRouter.HandleFunc("/status/{profileID:[0-9]+}", connectionHandler.Status).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/requests", connectionHandler.Connect).Methods(http.MethodPost)
	connectionRouter.HandleFunc("/requests/incoming", connectionHandler.ListIncoming).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/requests/outgoing", connectionHandler.ListOutgoing).Methods(http.MethodGet)
	connectionRouter.HandleFunc("/requests/{requestID:[0-9]+}", connectionHandler.Withdraw).Methods(http.MethodDelete)
	connectionRouter.HandleFunc("/requests/{requestID:[0-9]+}/accept", connectionHandler.Accept).Methods(http.MethodPost)
	connectionRouter.HandleFunc("/requests/{requestID:[0-9]+}/reject", connectionHandler.Reject).Methods(http.MethodPost)

	// WebSocket changefeed (需要认证)
	apiRouter.HandleFunc(cfg.WebSocket.Path, func(w http.ResponseWriter, req *http.Request) {
		profileID, ok := middleware.GetProfileIDFromContext(req.Context())
		if !ok {
			http.Error(w, "未认证", http.StatusUnauthorized)
			return
		}
		realtime.ServeWS(hub, profileID, w, req, cfg.WebSocket)
	}).Methods(http.MethodGet)

	// 10.3 公开路由 (不需要认证)
	r.HandleFunc("/profiles/{username}", profileHandler.GetByUsername).Methods(http.MethodGet)
	r.HandleFunc("/projects", projectHandler.List).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID:[0-9]+}", projectHandler.Get).Methods(http.MethodGet)

	// 10.4 静态文件服务路由 - 用于访问上传的文件
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(storageBaseURL, "/") + "/"
		localDir := http.Dir(cfg.Storage.LocalPath)
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(localDir)))
		log.Printf("提供静态文件服务于 %s -> %s", staticPath, cfg.Storage.LocalPath)
	}

	// 11. 初始化并启动 Kafka 消费者 (物化已接受的连接)
	acceptedConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建连接事件 Kafka 消费者: %v", err)
	}
	defer acceptedConsumer.Close()

	consumerLogic := kafkahandlers.NewConnectionAcceptedConsumerLogic(connRepo, hub)

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.ConnectionAcceptedTopic}
		log.Printf("Kafka 连接事件消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.ConnectionAcceptedTopic, cfg.Kafka.ConsumerGroup)
		err := acceptedConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, consumerLogic.HandleConnectionAccepted)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 连接事件消费者错误: %v", err)
		}
		log.Println("Kafka 连接事件消费者 goroutine 已停止。")
	}()

	// 12. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.APIServer.ReadTimeout,
		WriteTimeout:   cfg.APIServer.WriteTimeout,
		MaxHeaderBytes: cfg.APIServer.MaxHeaderBytes,
		IdleTimeout:    time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	cancelConsumers() // Signal Kafka consumer to stop
	log.Println("正在等待 Kafka 消费者停止...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
