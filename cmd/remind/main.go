// Command remind runs one reminder dispatch and exits. It is meant for an
// external trigger (system cron, Kubernetes CronJob) when the in-process
// scheduler of cmd/subtrack is disabled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/cache"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
	"github.com/ManuelReschke/SubTrack/internal/pkg/database"
	"github.com/ManuelReschke/SubTrack/internal/pkg/env"
	"github.com/ManuelReschke/SubTrack/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SubTrack/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SubTrack/internal/pkg/reminder"
)

func main() {
	lookahead := flag.Int("lookahead", -1, "single look-ahead window in days; default runs REMINDER_OFFSETS")
	flag.Parse()

	env.SetupEnvFile()
	cfg := config.LoadReminderConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := database.SetupDatabase(); err != nil {
		log.Fatal(err)
	}
	client := cache.SetupCache()
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := repository.NewFactory(database.GetDB())
	queue := jobqueue.NewQueue(client, 1)
	dispatcher := reminder.NewDispatcher(factory.GetSubscriptionRepository(), factory.GetDirectoryRepository(), queue, clock.Real{}, cfg).
		WithRecorder(counter.New(client))

	var (
		sum reminder.Summary
		err error
	)
	if *lookahead >= 0 {
		sum, err = dispatcher.RunLookahead(ctx, *lookahead)
	} else {
		sum, err = dispatcher.Run(ctx)
	}

	out, _ := json.Marshal(sum)
	fmt.Println(string(out))
	if err != nil {
		log.Errorf("[Remind] Dispatch ended early: %v", err)
		os.Exit(1)
	}
}
