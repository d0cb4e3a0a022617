package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/blackwell-systems/datapkg/internal/app"
	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cmd, err := app.Execute(ctx)
	stop()

	code := apperr.ExitCode(err)
	if err != nil {
		if code == apperr.ExitUnhandled {
			fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
			name := "datapkg"
			if cmd != nil {
				name = cmd.CommandPath()
			}
			observability.CaptureError(err, name)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	observability.FlushSentry()
	os.Exit(code)
}
