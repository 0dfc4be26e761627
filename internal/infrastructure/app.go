package infrastructure

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server is any long-running component the App supervises: the HTTP API,
// the task worker and the retry requeuer all satisfy it.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
}

func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

// Run starts every server and blocks until the context is cancelled or a
// server fails. All servers are then stopped with a shutdown grace period.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		_ = srv.Stop(stopCtx)
	}

	return g.Wait()
}
