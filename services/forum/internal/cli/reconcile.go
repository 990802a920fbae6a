package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/acadmate/internal/platform/natsconn"
	"github.com/example/acadmate/services/forum/internal/store"
	"github.com/example/acadmate/services/forum/internal/worker"
)

var reconcileAsync bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [discussion-id]",
	Short: "Recount discussion counters",
	Long: `Recounts commentCount and voteCount from the stored records and fixes
any drift. Without an id every discussion is checked. With --async the
requests are queued on NATS for the running service instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileAsync, "async", false, "publish reconcile requests instead of recounting here")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, closeStore, err := openStore(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	ids := args
	if len(ids) == 0 {
		if ids, err = st.DiscussionIDs(ctx); err != nil {
			return fmt.Errorf("list discussions: %w", err)
		}
	}

	if reconcileAsync {
		return publishReconcile(cmd, ids)
	}

	fixed := 0
	for _, id := range ids {
		fix, err := st.RecountCounters(ctx, id)
		if err != nil {
			return fmt.Errorf("recount %s: %w", id, err)
		}
		if fix.Changed() {
			fixed++
			printFix(cmd, fix)
		}
	}
	cmd.Printf("Checked %d discussion(s), fixed %d.\n", len(ids), fixed)
	return nil
}

func printFix(cmd *cobra.Command, fix store.CounterFix) {
	cmd.Printf("%s: comments %d -> %d, votes %d -> %d\n",
		fix.DiscussionID, fix.CommentsBefore, fix.CommentsAfter, fix.VotesBefore, fix.VotesAfter)
}

func publishReconcile(cmd *cobra.Command, ids []string) error {
	nc, err := natsconn.Connect(natsconn.Options{URL: natsURL, Name: "forumctl"})
	if err != nil {
		return err
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	if err := natsconn.EnsureStream(js, worker.Stream, worker.SubjectReconcile); err != nil {
		return err
	}
	for _, id := range ids {
		if err := worker.PublishReconcile(js, id); err != nil {
			return err
		}
	}
	cmd.Printf("Queued %d reconcile request(s).\n", len(ids))
	return nil
}
