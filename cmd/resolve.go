package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func addResolveCommand(ctx context.Context, rootCmd *cobra.Command) {
	var cmdResolve = &cobra.Command{
		Use:   "resolve <name> <namespace> <dest>",
		Short: "Materialize the best available snapshot into a directory, exiting 3 when there is none",
		Args:  cobra.ExactArgs(3),
		RunE:  newResolveAction(ctx),
	}
	rootCmd.AddCommand(cmdResolve)
}

func newResolveAction(ctx context.Context) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		c, err := buildCache()
		if err != nil {
			return err
		}

		found, err := c.Resolve(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if !found {
			os.Exit(3)
		}
		return nil
	}
}
