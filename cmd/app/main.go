package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	orderservice "github.com/Joletx42/trans-aggregator-bot/internal/order-service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: app <order-service>")
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	mylog, err := mylogger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create logger: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "order-service":
		if err := orderservice.Execute(context.Background(), mylog, cfg); err != nil {
			mylog.Error("order service stopped with error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown service %q\n", os.Args[1])
		os.Exit(1)
	}
}
