package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stegochat/stegochat/internal/app"
	"github.com/stegochat/stegochat/internal/config"
	"github.com/stegochat/stegochat/internal/tui"
	"go.uber.org/fx"
)

func main() {
	serverFlag := flag.String("server", "", "server base URL (overrides config)")
	nameFlag := flag.String("name", "", "display name (overrides config)")
	flag.Parse()

	var core *app.Core
	var cfg *config.Config
	fxApp := fx.New(
		fx.NopLogger, // the TUI owns the terminal
		app.Module(app.Params{
			ServerURL:   *serverFlag,
			DisplayName: *nameFlag,
			QuietLogs:   true,
		}),
		fx.Populate(&core, &cfg),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(core, cfg.DisplayName)
	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	_ = fxApp.Stop(stopCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
