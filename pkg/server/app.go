package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	xhttp "SignalView/pkg/http"
	pkgkafka "SignalView/pkg/kafka"
	applogger "SignalView/pkg/logger"
)

// Resource is closed on shutdown, in reverse registration order.
type Resource struct {
	Name   string
	Closer io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	http            *xhttp.Server
	consumer        *pkgkafka.Consumer
	handlers        []pkgkafka.MessageHandler
	resources       []Resource
	shutdownTimeout time.Duration
	l               *applogger.Logger
}

// New creates an App around an HTTP server. consumer may be nil.
func New(l *applogger.Logger, srv *xhttp.Server, consumer *pkgkafka.Consumer, shutdownTimeout time.Duration) *App {
	if l == nil {
		l = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		http:            srv,
		consumer:        consumer,
		shutdownTimeout: shutdownTimeout,
		l:               l,
	}
}

// AddHandler registers a Kafka handler started with the consumer.
func (a *App) AddHandler(h pkgkafka.MessageHandler) {
	if h != nil {
		a.handlers = append(a.handlers, h)
	}
}

// AddResource registers something to close on shutdown.
func (a *App) AddResource(name string, c io.Closer) {
	if c != nil {
		a.resources = append(a.resources, Resource{Name: name, Closer: c})
	}
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs until ctx is done or a component fails.
func (a *App) RunContext(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.http != nil {
		g.Go(func() error { return a.http.Run(gctx) })
	}

	consumerStarted := false
	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		consumerStarted = true
	}

	<-gctx.Done()
	a.l.Info("shutting down")

	err := g.Wait()
	a.shutdown(consumerStarted)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown stops background workers and closes infrastructure clients.
func (a *App) shutdown(consumerStarted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if consumerStarted {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for i := len(a.resources) - 1; i >= 0; i-- {
		r := a.resources[i]
		if err := r.Closer.Close(); err != nil {
			a.l.Warn("resource close error", applogger.String("resource", r.Name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}
