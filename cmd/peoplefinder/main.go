package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "peoplefinder",
		Short:         "Search people across the directory, graph, contact center and profile store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PEOPLEFINDER_CONFIG"),
		"YAML config file (env PEOPLEFINDER_CONFIG)")

	root.AddCommand(
		newServeCommand(&configPath),
		newSearchCommand(&configPath),
		newCheckCommand(&configPath),
	)
	return root
}
