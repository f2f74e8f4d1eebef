// Server runs the Portfolyze auth API: the JSON API on HTTP_ADDR and gRPC health on GRPC_ADDR.
// Without DATABASE_URL it runs on in-memory stores; without REDIS_URL rate limits and challenge
// nonces are kept in process.
package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const serviceName = "portfolyze-auth"

func main() {
	app := NewApp()

	if err := app.Start(context.Background()); err != nil {
		log.Printf("failed to start: %v", err)
		os.Exit(1)
	}

	<-app.Done()

	if err := app.Stop(context.Background()); err != nil {
		log.Printf("failed to stop gracefully: %v", err)
		os.Exit(1)
	}
}

// NewApp wires the server. Modules are listed in dependency order.
func NewApp() *fx.App {
	return fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		baseModule,
		dataModule,
		authModule,
		transportModule,
	)
}
