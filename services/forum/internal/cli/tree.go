package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/acadmate/services/forum/internal/thread"
)

var treeCmd = &cobra.Command{
	Use:   "tree <discussion-id>",
	Short: "Print a discussion's comment tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, closeStore, err := openStore(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer closeStore()

		comments, err := st.ListComments(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list comments: %w", err)
		}
		roots, total := thread.Build(comments, time.Now().UTC())
		thread.Walk(roots, func(n *thread.Node, depth int) {
			cmd.Printf("%s- %s %s: %s\n", strings.Repeat("  ", depth), n.ID, n.Author.DisplayName, firstLine(n.Content, 60))
		})
		cmd.Printf("%d comment(s)\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
