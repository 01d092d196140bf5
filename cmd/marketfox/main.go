package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/app/repository"
	apiv1 "github.com/ManuelReschke/MarketFox/internal/api/v1"
	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
	"github.com/ManuelReschke/MarketFox/internal/pkg/database"
	"github.com/ManuelReschke/MarketFox/internal/pkg/emitter"
	"github.com/ManuelReschke/MarketFox/internal/pkg/env"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
	"github.com/ManuelReschke/MarketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MarketFox/internal/pkg/live"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	"github.com/ManuelReschke/MarketFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/MarketFox/internal/pkg/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app, cleanup := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
	cleanup()
}

// NewApplication wires configuration, storage, the event pipeline and the
// HTTP API. The returned cleanup stops background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db,
		repository.WithServerSort(env.GetEnvBool("DB_SERVER_SORT", true)),
		repository.WithRedis(cache.GetClient()),
	)
	repos := repository.GetGlobalRepositories()

	// EVENT PIPELINE
	hub := live.NewHub(cache.GetClient())
	chat := emitter.NewChatEmitter(repos.Conversation)
	manager := jobqueue.GetManager()
	dispatcher := events.NewDispatcher(
		emitter.NewNotificationEmitter(repos.Notification, hub),
		emitter.NewActivityEmitter(repos.Activity),
		chat,
		manager.Counter(),
	)
	publisher, stopPublishers := newPublisher(dispatcher, manager)

	svc := marketplace.NewService(repos,
		marketplace.WithPublisher(publisher),
		marketplace.WithConversations(chat),
		marketplace.WithWebhookSecret(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")),
	)
	if env.GetEnv("PAYMENT_WEBHOOK_SECRET", "") == "" {
		log.Warn("[Server] PAYMENT_WEBHOOK_SECRET is empty, every payment webhook will be rejected")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "MarketFox",
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    constants.DocsRoute,
		FileContent: apiv1.Spec,
		Path:        "v1",
	}))

	// ROUTER
	mc := controllers.NewMarketController(svc, repos,
		controllers.WithLiveHub(hub),
		controllers.WithFanoutCounter(manager.Counter()),
		controllers.WithStreamTokens(
			env.GetEnv("LIVE_TOKEN_SECRET", ""),
			time.Duration(env.GetEnvInt("LIVE_TOKEN_TTL_SECONDS", 300))*time.Second,
		),
	)
	router.InstallRouter(app, mc, ratelimit.New(ratelimit.ConfigFromEnv()), func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return sqlDB.PingContext(ctx)
	})

	checkAPIDocs(app)

	return app, stopPublishers
}

// newPublisher builds the event publisher from EVENT_DISPATCH and
// KAFKA_BROKERS. "queue" hands events to the Redis job queue, anything else
// dispatches in the request goroutine. Kafka only mirrors.
func newPublisher(dispatcher *events.Dispatcher, manager *jobqueue.Manager) (events.Publisher, func()) {
	var stops []func()
	var primary events.Publisher = events.NewSyncPublisher(dispatcher)

	if env.GetEnv("EVENT_DISPATCH", "sync") == "queue" {
		manager.RegisterDispatcher(dispatcher)
		manager.Start()
		primary = manager.Publisher()
		stops = append(stops, manager.Stop)
		log.Info("[Server] Dispatching domain events through the job queue")
	}

	publisher := primary
	if brokers := env.GetEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(brokers, env.GetEnv("KAFKA_TOPIC_PREFIX", "marketfox"))
		if err != nil {
			log.Warnf("[Server] Kafka mirror disabled: %v", err)
		} else {
			publisher = events.NewFanoutPublisher(primary, kafka)
			stops = append(stops, func() {
				if err := kafka.Close(); err != nil {
					log.Warnf("[Server] Closing Kafka writer: %v", err)
				}
			})
			log.Infof("[Server] Mirroring domain events to Kafka at %v", brokers)
		}
	}

	return publisher, func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

// checkAPIDocs warns about API routes the OpenAPI document does not cover.
func checkAPIDocs(app *fiber.App) {
	doc, err := apiv1.Load(context.Background())
	if err != nil {
		log.Errorf("[Server] OpenAPI document is invalid: %v", err)
		return
	}
	for _, route := range apiv1.Undocumented(doc, app.GetRoutes(true), constants.APIRoute+constants.APIv1Route) {
		log.Warnf("[Server] Route %s is missing from the OpenAPI document", route)
	}
}
