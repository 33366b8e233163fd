package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var packageDir string

func addPackageCommand(ctx context.Context, rootCmd *cobra.Command) {
	var cmdPackage = &cobra.Command{
		Use:   "package <name> <file>...",
		Short: "Compress files into the local snapshot for <name> and print its path",
		Args:  cobra.MinimumNArgs(2),
		RunE:  newPackageAction(ctx),
	}
	cmdPackage.Flags().StringVarP(&packageDir, "directory", "C", ".", "working directory the files are resolved against")
	rootCmd.AddCommand(cmdPackage)
}

func newPackageAction(ctx context.Context) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		c, err := buildCache()
		if err != nil {
			return err
		}

		localPath, err := c.Package(ctx, args[0], packageDir, args[1:])
		if err != nil {
			return err
		}

		fmt.Println(localPath)
		return nil
	}
}
