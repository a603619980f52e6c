package main

import (
	"context"
	"errors"
	"log"

	"kestrel/internal/config"
	"kestrel/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("kestreld: %v", err)
	}
}
