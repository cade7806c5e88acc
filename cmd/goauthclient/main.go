// Command goauthclient drives a goAuthClient.Manager from the terminal.
//
//	goauthclient devserver --seed alice@example.com:correct-horse:member
//	goauthclient login alice@example.com --password correct-horse
//	goauthclient status
//	goauthclient watch
//
// Configuration is read from $HOME/.goauthclient/config.yaml and
// GOAUTHCLIENT_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
