package main

import (
	"log/slog"
	"os"

	"github.com/zenithax-cc/taotie/internal/cli"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("TAOTIE_DEBUG") != "" {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	cli.Execute()
}
