package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/raven-go"
)

func init() {
	parser.AddCommand("run",
		"Run the admin console",
		"Run the admin console server.",
		&RunCommand{},
	)
}

// RunCommand starts the HTTP server, the scheduled-announcement sweep
// and the poll workers for every bot that was online at shutdown.
type RunCommand struct{}

// Execute wires the globals and blocks until SIGINT or SIGTERM.
func (x *RunCommand) Execute(args []string) error {
	config = LoadConfig(options.Config)
	orm = NewDb(config)
	logger = newLogger()

	if config.SentryDSN != "" {
		if err := raven.SetDSN(config.SentryDSN); err != nil {
			logger.Errorf("sentry dsn: %v", err)
		}
	}

	sched, err := newScheduler()
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}
	sched.Start()

	resumePollers()

	go func() {
		if err := setup().Run(config.HTTPServer.Listen); err != nil {
			logger.Fatalf("http server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("shutting down")
	if err := sched.Shutdown(); err != nil {
		logger.Errorf("scheduler shutdown: %v", err)
	}
	pollers.stopAll()
	orm.Close()

	return nil
}

// resumePollers restarts update polling for bots left online by the
// previous process.
func resumePollers() {
	bots, err := getBots()
	if err != nil {
		logger.Errorf("resume pollers: %v", err)
		return
	}

	for i := range bots {
		if bots[i].Status != BotStatusOnline {
			continue
		}
		pollers.start(&bots[i])
		logger.Infof("bot %d: polling resumed", bots[i].ID)
	}
}
