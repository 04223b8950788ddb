// Command worker relays the auth outbox to the event bus and sweeps expired sessions.
package main

import (
	"context"
	"log"

	"github.com/shopfront/auth-service/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, bootstrap.ConfigPathFromEnv())
	if err != nil {
		log.Fatalf("worker bootstrap: %v", err)
	}
	if err := runtime.RunWorker(ctx); err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
}
