package bootstrap

import (
	"context"
	"log"

	"memberpass-be/internal/config"
	"memberpass-be/internal/controller"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/pkg/mailer"
	"memberpass-be/internal/pkg/serverutils"
	"memberpass-be/internal/repository/implementation"
	"memberpass-be/internal/repository/memory"
	"memberpass-be/internal/repository/unitofwork"
	"memberpass-be/internal/service"
	"memberpass-be/pkg/gateway/midtrans"
	pktNats "memberpass-be/pkg/nats"
	"memberpass-be/pkg/roles"
	"memberpass-be/pkg/roles/discord"

	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	WebhookController      controller.IWebhookController
	SubscriptionController controller.ISubscriptionController
	JwtMiddleware          fiber.Handler

	// Background services, started by StartWorkers
	Relay *service.OutboxRelay
	Sweep service.ISweepService

	Logger logger.ILogger

	consumer  service.IRoleConsumerService
	channel   *roles.ChannelDispatcher
	natsPub   *pktNats.Publisher
	natsSub   *pktNats.Subscriber
	rdb       *redis.Client
	cfg       *config.Config
	roleLog   *logger.ZapLogger
	sysLogger *logger.ZapLogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	roleLogger := logger.NewIsolatedLogger(cfg.App.RoleLogFilePath)

	alerts := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
		cfg.SMTP.AlertTo,
	)

	c := &Container{
		JwtMiddleware: serverutils.NewJwtMiddleware(cfg.App.JwtSecret),
		Logger:        sysLogger,
		cfg:           cfg,
		roleLog:       roleLogger,
		sysLogger:     sysLogger,
	}

	// 2. Infrastructure
	locker := roles.KeyLocker(roles.NewLocalLocker())
	if cfg.App.RedisURL != "" {
		c.rdb = connectRedis(cfg.App.RedisURL)
		if c.rdb != nil {
			locker = roles.NewRedisLocker(c.rdb, cfg.Roles.LockTTL)
			log.Printf("[INFO] Role locks held in Redis")
		}
	}
	if cfg.App.NatsURL != "" {
		var err error
		if c.natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		}
		if c.natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		}
	}

	// 3. Catalog and role orchestration
	catalog := memory.NewTierCache(implementation.NewTierCatalog(db), cfg.Billing.TierCacheTTL)
	roleClient := discord.NewClient(cfg.Roles.DiscordBaseURL, cfg.Roles.DiscordBotToken, service.NewMemberDirectory(uowFactory))
	orchestrator := roles.NewOrchestrator(roleClient, locker, roles.Config{
		CallTimeout:     cfg.Roles.CallTimeout,
		MaxTries:        uint(cfg.Roles.MaxTries),
		MaxElapsed:      cfg.Roles.MaxElapsed,
		InitialInterval: roles.DefaultConfig().InitialInterval,
		MaxInterval:     roles.DefaultConfig().MaxInterval,
	}, roleLogger)

	activity := service.NewActivityService(uowFactory, sysLogger)
	machine := service.NewStateMachine(activity, sysLogger)
	c.consumer = service.NewRoleConsumerService(uowFactory, orchestrator, catalog, activity, alerts, roleLogger)
	publisher := service.NewRolePublisher(c.dispatcher(), uowFactory, sysLogger)

	// 4. Payment gateway
	var checkout midtrans.CheckoutGateway
	if cfg.Gateway.ServerKey != "" {
		snap, err := midtrans.NewSnapCheckout(cfg.Gateway.ServerKey, cfg.Gateway.IsProduction)
		if err != nil {
			log.Fatalf("[FATAL] Failed to initialize Snap checkout: %v", err)
		}
		checkout = snap
	} else {
		log.Printf("[WARN] MIDTRANS_SERVER_KEY not set, checkout disabled and every notification will fail verification")
	}

	// 5. Services
	webhookService := service.NewWebhookService(uowFactory, catalog, machine, publisher, service.WebhookSettings{
		ServerKey:       cfg.Gateway.ServerKey,
		Location:        midtrans.Location(cfg.Gateway.TimeZone),
		MaxAge:          cfg.Gateway.MaxEventAge,
		GracePeriodDays: cfg.Billing.GracePeriodDays,
	}, sysLogger)
	subscriptionService := service.NewSubscriptionService(uowFactory, catalog, machine, publisher, checkout, cfg.Gateway.FinishURL, sysLogger)

	c.Sweep = service.NewSweepService(uowFactory, catalog, machine, publisher, cfg.Billing.PendingTimeout, sysLogger)
	c.Relay = service.NewOutboxRelay(publisher, uowFactory, activity, alerts, service.RelayConfig{
		Interval:   cfg.Worker.RelayInterval,
		StaleAfter: cfg.Worker.RelayStaleAfter,
		MaxResends: cfg.Worker.RelayMaxResends,
	}, sysLogger)

	// 6. Controllers
	c.WebhookController = controller.NewWebhookController(webhookService, sysLogger)
	c.SubscriptionController = controller.NewSubscriptionController(subscriptionService, activity)
	return c
}

// dispatcher picks how committed role commands reach the consumer.
func (c *Container) dispatcher() roles.Dispatcher {
	mode := c.cfg.Worker.Dispatcher
	if mode == "nats" && (c.natsPub == nil || c.natsSub == nil) {
		log.Printf("[WARN] NATS unavailable, falling back to in-process role dispatch")
		mode = "channel"
	}

	switch mode {
	case "inline":
		log.Printf("[INFO] Role dispatch: %s", color.CyanString("inline"))
		return roles.NewInlineDispatcher(c.consumer.Handle, c.cfg.Worker.InlineTimeout)
	case "nats":
		log.Printf("[INFO] Role dispatch: %s", color.CyanString("nats"))
		return roles.NewNatsDispatcher(c.natsPub)
	default:
		log.Printf("[INFO] Role dispatch: %s", color.CyanString("channel"))
		c.channel = roles.NewChannelDispatcher(roles.NewGoChannel(), c.cfg.Worker.Topic, c.roleLog)
		return c.channel
	}
}

// StartWorkers attaches the role consumer to the bus and starts the outbox relay.
func (c *Container) StartWorkers(ctx context.Context) error {
	switch {
	case c.channel != nil:
		if err := c.channel.Consume(ctx, c.consumer.Handle); err != nil {
			return err
		}
	case c.cfg.Worker.Dispatcher == "nats" && c.natsSub != nil:
		if err := roles.ConsumeNats(ctx, c.natsSub, c.cfg.Worker.Durable, c.cfg.Worker.MaxDeliver, c.consumer.Handle); err != nil {
			return err
		}
	}

	go c.Relay.Run(ctx)
	return nil
}

func (c *Container) Close() {
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	_ = c.roleLog.Sync()
	_ = c.sysLogger.Sync()
}

func connectRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v, using in-process role locks", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}
