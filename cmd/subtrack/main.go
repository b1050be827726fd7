package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SubTrack/app/controllers"
	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/billing"
	"github.com/ManuelReschke/SubTrack/internal/pkg/cache"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
	"github.com/ManuelReschke/SubTrack/internal/pkg/database"
	"github.com/ManuelReschke/SubTrack/internal/pkg/env"
	"github.com/ManuelReschke/SubTrack/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SubTrack/internal/pkg/lifecycle"
	"github.com/ManuelReschke/SubTrack/internal/pkg/mail"
	"github.com/ManuelReschke/SubTrack/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SubTrack/internal/pkg/notify"
	"github.com/ManuelReschke/SubTrack/internal/pkg/reminder"
	"github.com/ManuelReschke/SubTrack/internal/pkg/router"
	"github.com/ManuelReschke/SubTrack/internal/pkg/scheduler"
)

// services is everything the server process runs next to the HTTP listener.
type services struct {
	cfg       *config.Config
	manager   *jobqueue.Manager
	scheduler *scheduler.Scheduler
	deps      router.Dependencies
}

func main() {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := database.SetupDatabase(); err != nil {
		log.Fatal(err)
	}
	client := cache.SetupCache()

	svc, err := newServices(cfg, database.GetDB(), client)
	if err != nil {
		log.Fatal(err)
	}
	app := NewApplication(svc.deps)

	svc.manager.Start()
	svc.scheduler.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Errorf("[Server] Listener stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("[Server] Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc.scheduler.Stop(ctx)
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warnf("[Server] Shutdown: %v", err)
	}
	svc.manager.Stop()
	_ = client.Close()
}

func newServices(cfg *config.Config, db *gorm.DB, client *redis.Client) (*services, error) {
	clk := clock.Real{}
	repos := repository.NewFactory(db).GetRepositories()
	stats := counter.New(client)

	queue := jobqueue.NewQueue(client, cfg.Queue.Workers)
	senders := notify.NewChannelRouter().
		Register(notify.ChannelEmail, notify.NewEmailSender(mail.NewSMTPMailer(mail.ConfigFromEnv())))
	if wa := notify.NewWhatsAppSenderFromEnv(); wa.Configured() {
		senders.Register(notify.ChannelWhatsApp, wa)
	} else if cfg.Reminder.WhatsAppEnabled {
		log.Warn("[Server] WHATSAPP_ENABLED is set but Twilio credentials are missing; WhatsApp jobs will fail")
	}
	queue.RegisterHandler(jobqueue.JobTypeReminderNotification, jobqueue.NewNotificationHandler(senders))
	manager := jobqueue.NewManager(queue)

	var dedup billing.DedupStore
	switch cfg.Webhook.DedupBackend {
	case config.DedupBackendDatabase:
		store := billing.NewGormDedupStore(repos.Marker, clk)
		manager.AddTask(jobqueue.PeriodicTask{
			Name:     "purge-billing-markers",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				n, err := store.Purge(ctx)
				if n > 0 {
					log.Infof("[Billing] Purged %d expired event markers", n)
				}
				return err
			},
		})
		dedup = store
	default:
		dedup = billing.NewRedisDedupStore(client)
	}
	reconciler := billing.NewReconciler(repos.Subscription, repos.Directory, dedup, clk, cfg.Webhook.DedupTTL)

	dispatcher := reminder.NewDispatcher(repos.Subscription, repos.Directory, queue, clk, cfg.Reminder).WithRecorder(stats)
	sched, err := scheduler.New(cfg.Scheduler, client, func(ctx context.Context) error {
		_, err := dispatcher.Run(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &services{
		cfg:       cfg,
		manager:   manager,
		scheduler: sched,
		deps: router.Dependencies{
			Subscriptions:  controllers.NewSubscriptionController(lifecycle.NewService(repos.Subscription, clk)),
			Reminders:      controllers.NewReminderController(dispatcher, stats),
			Webhooks:       controllers.NewWebhookController(reconciler, cfg.Webhook, clk, stats),
			APIToken:       cfg.API.Token,
			LimiterStorage: router.NewLimiterStorage(client),
			LimiterMax:     env.GetEnvInt("API_RATE_LIMIT", 120),
		},
	}, nil
}

func NewApplication(deps router.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": "http_error", "message": err.Error()})
		},
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app
}
