package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rebase-analytics/ibreport/cmd/ibreport/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	commands.ExecuteContext(ctx)
}
