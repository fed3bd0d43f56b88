package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/gyazemon/internal/cli"
	"github.com/dmitrijs2005/gyazemon/internal/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
