package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/reptile-store-api/internal/config"
	"github.com/flicky/reptile-store-api/internal/handler"
	"github.com/flicky/reptile-store-api/internal/mail"
	"github.com/flicky/reptile-store-api/internal/media"
	"github.com/flicky/reptile-store-api/internal/middleware"
	"github.com/flicky/reptile-store-api/internal/payment"
	"github.com/flicky/reptile-store-api/internal/repository"
	"github.com/flicky/reptile-store-api/internal/service"
	"github.com/flicky/reptile-store-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations
	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(cfg.DB.MigrationsPath, cfg.DB.DSN()); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// External services
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	uploader := media.Disabled()
	if cfg.Cloudinary.Enabled() {
		cld, err := media.NewCloudinaryUploader(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			log.Error("init cloudinary", "error", err)
			os.Exit(1)
		}
		uploader = cld
	} else {
		log.Warn("cloudinary not configured, image uploads disabled")
	}

	sender := mail.NewSMTPSender(cfg.Email.SenderName, cfg.Email.User, cfg.Email.Password, cfg.Email.SMTPHost, cfg.Email.SMTPPort)
	publisher := worker.NewPublisher(amqpCh)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	messageRepo := repository.NewMessageRepository(dbPool)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, categoryRepo, redisClient, uploader)
	categorySvc := service.NewCategoryService(categoryRepo)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	checkoutSvc := service.NewCheckoutService(cartRepo, orderRepo, gateway, publisher, productSvc, cfg.Stripe.Currency, log)
	orderSvc := service.NewOrderService(orderRepo)
	messageSvc := service.NewMessageService(messageRepo, publisher, log)

	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Error("ensure admin user", "error", err)
		os.Exit(1)
	}

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	productH := handler.NewProductHandler(productSvc)
	categoryH := handler.NewCategoryHandler(categorySvc)
	cartH := handler.NewCartHandler(cartSvc)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc, gateway, cfg.Stripe.PublishableKey, log)
	orderH := handler.NewOrderHandler(orderSvc)
	messageH := handler.NewMessageHandler(messageSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	notificationWorker := worker.NewNotificationWorker(amqpCh, orderRepo, productRepo, userRepo, messageRepo, sender, redisClient, log)

	// Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authMW := middleware.AuthMiddleware(cfg.JWT.Secret)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		v1.GET("/products", productH.List)
		v1.GET("/products/:id", productH.GetByID)
		v1.GET("/categories", categoryH.List)
		v1.POST("/messages", messageH.Create)
		v1.POST("/webhooks/stripe", checkoutH.Webhook)

		cart := v1.Group("/cart", authMW)
		cart.GET("", cartH.GetCart)
		cart.DELETE("", cartH.Clear)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)

		checkout := v1.Group("/checkout", authMW)
		checkout.POST("/payment-intent", checkoutH.CreatePaymentIntent)
		checkout.GET("/complete", checkoutH.Complete)

		orders := v1.Group("/orders", authMW)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)

		admin := v1.Group("/admin", authMW, middleware.AdminOnly())
		admin.POST("/products", productH.Create)
		admin.PUT("/products/:id", productH.Update)
		admin.DELETE("/products/:id", productH.Delete)
		admin.POST("/products/:id/image", productH.UploadImage)

		admin.GET("/categories/:id", categoryH.GetByID)
		admin.POST("/categories", categoryH.Create)
		admin.PUT("/categories/:id", categoryH.Update)
		admin.DELETE("/categories/:id", categoryH.Delete)

		admin.GET("/orders", orderH.AdminList)
		admin.GET("/orders/:id", orderH.AdminGet)
		admin.PUT("/orders/:id/status", orderH.UpdateStatus)

		admin.GET("/messages", messageH.List)
		admin.GET("/messages/:id", messageH.Get)
		admin.POST("/messages/:id/reply", messageH.Reply)
		admin.DELETE("/messages/:id", messageH.Delete)
	}

	if err := notificationWorker.Start(ctx); err != nil {
		log.Error("start notification worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		notificationWorker.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
