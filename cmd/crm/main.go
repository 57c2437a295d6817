// Command crm is the local-first personal CRM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/crm/internal/cli"
	"github.com/roach88/crm/internal/errs"
)

// fallbackMessage is printed when the store cannot be opened at all.
const fallbackMessage = `crm could not open its data store.
Check the --db flag, CRM_DB_PATH and the file's permissions, then try again.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return
	}

	if errs.IsStoreFault(err) && cli.GetExitCode(err) == cli.ExitCommandError {
		fmt.Fprintln(os.Stderr, fallbackMessage)
	}
	fmt.Fprintf(os.Stderr, "crm: %v\n", err)

	stop()
	os.Exit(cli.GetExitCode(err))
}
