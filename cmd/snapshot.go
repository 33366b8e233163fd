package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vcscache/vcscache/pkg/common"
)

func addSnapshotCommand(ctx context.Context, rootCmd *cobra.Command) {
	input := &publishInput{}
	var snapshotDir string
	var cmdSnapshot = &cobra.Command{
		Use:   "snapshot <name> <namespace> <file>...",
		Short: "Package files and publish the snapshot in one go",
		Args:  cobra.MinimumNArgs(3),
		RunE:  newSnapshotAction(ctx, input, &snapshotDir),
	}
	cmdSnapshot.Flags().StringVarP(&snapshotDir, "directory", "C", ".", "working directory the files are resolved against")
	addPublishFlags(cmdSnapshot, input)
	rootCmd.AddCommand(cmdSnapshot)
}

func newSnapshotAction(ctx context.Context, input *publishInput, dir *string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := common.WithDryrun(ctx, dryrun)

		name, namespace, files := args[0], args[1], args[2:]

		opts, err := input.options()
		if err != nil {
			return err
		}

		c, err := buildCache()
		if err != nil {
			return err
		}

		pipeline := common.NewPipelineExecutor(
			common.NewDebugExecutor("snapshotting %s from %d file(s)", name, len(files)),
			func(ctx context.Context) error {
				_, err := c.Package(ctx, name, *dir, files)
				return err
			},
			func(ctx context.Context) error {
				return c.Publish(ctx, name, namespace, opts)
			},
		)
		return pipeline(ctx)
	}
}
