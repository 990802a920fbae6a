package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/acadmate/internal/platform/auth"
	"github.com/example/acadmate/services/forum/internal/store"
)

const testSecret = "cli-test-secret-cli-test-secret-!"

// execute runs rootCmd with args and resets flag state afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		databaseURL, natsURL, verbose = "", "", false
		tokenName, tokenEmail, tokenRole, tokenSecret, tokenTTL = "", "", "", "", time.Hour
		reconcileAsync = false
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func useStore(t *testing.T, st store.ForumStore) {
	t.Helper()
	orig := openStore
	openStore = func(context.Context, string) (store.ForumStore, func(), error) {
		return st, func() {}, nil
	}
	t.Cleanup(func() { openStore = orig })
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"migrate", "reconcile", "token", "tree"} {
		assert.Contains(t, names, want)
	}
}

func TestTokenCmd_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	out, err := execute(t, "token", "u-42", "--secret", testSecret, "--name", "Grace", "--role", "admin", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.JWTVerifier{Secret: []byte(testSecret)}.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, "u-42", id.UID)
	assert.Equal(t, "Grace", id.DisplayName)
	assert.True(t, id.IsAdmin())
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := execute(t, "token", "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
}

func TestTokenCmd_RequiresUID(t *testing.T) {
	_, err := execute(t, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTreeCmd_PrintsIndentedThread(t *testing.T) {
	st := store.NewInMemoryForumStore()
	ctx := context.Background()
	d, err := st.CreateDiscussion(ctx, store.Discussion{Title: "t", Content: "content", Author: store.Author{UID: "a"}})
	require.NoError(t, err)
	root, err := st.CreateComment(ctx, store.Comment{DiscussionID: d.ID, Content: "root comment", Author: store.Author{UID: "a", DisplayName: "Ada"}})
	require.NoError(t, err)
	pid := root.ID
	_, err = st.CreateComment(ctx, store.Comment{DiscussionID: d.ID, ParentID: &pid, Content: "a reply\nwith more lines", Author: store.Author{UID: "b", DisplayName: "Bo"}})
	require.NoError(t, err)
	useStore(t, st)

	out, err := execute(t, "tree", d.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "- "+root.ID+" Ada: root comment")
	assert.Contains(t, out, "\n  - ")
	assert.Contains(t, out, "Bo: a reply\n")
	assert.Contains(t, out, "2 comment(s)")
}

func TestReconcileCmd_ReportsCleanStore(t *testing.T) {
	st := store.NewInMemoryForumStore()
	_, err := st.CreateDiscussion(context.Background(), store.Discussion{Title: "t", Content: "c", Author: store.Author{UID: "a"}})
	require.NoError(t, err)
	useStore(t, st)

	out, err := execute(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked 1 discussion(s), fixed 0.")
}

func TestReconcileCmd_UnknownDiscussion(t *testing.T) {
	useStore(t, store.NewInMemoryForumStore())
	_, err := execute(t, "reconcile", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDiscussionNotFound)
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo", 10))
	assert.Equal(t, "abc...", firstLine("abcdef", 3))
	assert.Equal(t, "héllo", firstLine("héllo", 5))
}
