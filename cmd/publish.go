package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vcscache/vcscache/pkg/cache"
	"github.com/vcscache/vcscache/pkg/common"
	"github.com/vcscache/vcscache/pkg/common/git"
)

// publishInput collects the publish flags before they become
// cache.PublishOptions.
type publishInput struct {
	taskID        string
	runID         string
	rank          int64
	expiresDays   int
	data          string
	namespaceFrom string
}

func addPublishCommand(ctx context.Context, rootCmd *cobra.Command) {
	input := &publishInput{}
	var cmdPublish = &cobra.Command{
		Use:   "publish <name> [namespace]",
		Short: "Upload the packaged snapshot and index it under a namespace",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  newPublishAction(ctx, input),
	}
	addPublishFlags(cmdPublish, input)
	cmdPublish.Flags().StringVar(&input.namespaceFrom, "namespace-from", "", "derive the namespace from a checkout when none is given")
	rootCmd.AddCommand(cmdPublish)
}

func addPublishFlags(cmd *cobra.Command, input *publishInput) {
	cmd.Flags().StringVar(&input.taskID, "task-id", "", "task the snapshot is stored under, defaults to $TASK_ID")
	cmd.Flags().StringVar(&input.runID, "run-id", "", "run within the task, defaults to $RUN_ID")
	cmd.Flags().Int64Var(&input.rank, "rank", 0, "record rank, higher wins, defaults to the current unix time")
	cmd.Flags().IntVar(&input.expiresDays, "expires-days", 0, "days until the record expires, defaults to 30")
	cmd.Flags().StringVar(&input.data, "data", "", "opaque JSON attached to the record")
}

func newPublishAction(ctx context.Context, input *publishInput) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := common.WithDryrun(ctx, dryrun)

		namespace, err := input.namespace(ctx, args)
		if err != nil {
			return err
		}

		opts, err := input.options()
		if err != nil {
			return err
		}

		c, err := buildCache()
		if err != nil {
			return err
		}
		return c.Publish(ctx, args[0], namespace, opts)
	}
}

// namespace picks the positional namespace when one was given, otherwise
// derives <slug>/<branch> from the checkout named by --namespace-from.
func (input *publishInput) namespace(ctx context.Context, args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	if input.namespaceFrom == "" {
		return "", errors.New("a namespace argument or --namespace-from is required")
	}

	slug, err := git.FindRepoSlug(ctx, input.namespaceFrom, "", "")
	if err != nil {
		return "", errors.WithMessagef(err, "unable to find a remote slug under %s", input.namespaceFrom)
	}
	branch, err := git.FindGitBranch(ctx, input.namespaceFrom)
	if err != nil {
		return "", errors.WithMessagef(err, "unable to find the checked out branch under %s", input.namespaceFrom)
	}
	return slug + "/" + branch, nil
}

func (input *publishInput) options() (cache.PublishOptions, error) {
	opts := cache.PublishOptions{
		TaskID: input.taskID,
		RunID:  input.runID,
		Rank:   input.rank,
	}
	if opts.TaskID == "" {
		opts.TaskID = os.Getenv("TASK_ID")
	}
	if opts.RunID == "" {
		opts.RunID = os.Getenv("RUN_ID")
	}
	if input.expiresDays > 0 {
		opts.Expires = time.Now().Add(time.Duration(input.expiresDays) * 24 * time.Hour)
	}
	if input.data != "" {
		if !json.Valid([]byte(input.data)) {
			return opts, errors.Errorf("--data is not valid JSON: %s", input.data)
		}
		opts.Data = json.RawMessage(input.data)
	}
	return opts, nil
}
