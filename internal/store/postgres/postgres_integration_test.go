//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

var (
	testDB   *sql.DB
	testConn string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trip_planner"),
		tcpostgres.WithUsername("trip"),
		tcpostgres.WithPassword("trip"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start postgres container:", err)
		os.Exit(1)
	}
	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "connection string:", err)
		os.Exit(1)
	}
	ldb, err := sql.Open("pgx", conn)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	if err := waitForDB(ldb); err != nil {
		_ = ldb.Close()
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "ping db:", err)
		os.Exit(1)
	}
	if err := applyMigrations(ctx, ldb); err != nil {
		_ = ldb.Close()
		_ = container.Terminate(ctx)
		fmt.Fprintln(os.Stderr, "apply migrations:", err)
		os.Exit(1)
	}
	testDB = ldb
	testConn = conn
	code := m.Run()
	_ = ldb.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	migrationsDir := filepath.Join(root, "infra", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func waitForDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var lastErr error
	for i := 0; i < 20; i++ {
		if err := db.PingContext(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func repoRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("resolve repo root")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..")), nil
}

func cleanDB(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(`TRUNCATE TABLE chat_suggestions, messages, chats CASCADE`)
	require.NoError(t, err)
}

func TestIntegration_ChatLifecycle(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()
	pg, err := New(testConn)
	require.NoError(t, err)
	defer pg.Close()

	require.NoError(t, pg.UpsertChat(ctx, store.Chat{ID: "chat-1", UserID: "u-1", Group: "web", Model: "scira-default"}))
	require.NoError(t, pg.UpsertChat(ctx, store.Chat{ID: "chat-1", Group: "chat", Model: "scira-default"}))
	chat, err := pg.GetChat(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "chat", chat.Group)
	require.Equal(t, "u-1", chat.UserID)

	_, err = pg.AppendMessages(ctx, "chat-1", []store.Message{
		{Role: "user", Content: "weekend in lisbon"},
		{Role: "assistant", Content: "", Metadata: map[string]any{"pass": float64(1)}},
	})
	require.NoError(t, err)
	msgs, err := pg.ListMessages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, float64(1), msgs[1].Metadata["pass"])

	require.NoError(t, pg.SaveSuggestions(ctx, store.Suggestions{ChatID: "chat-1", Questions: []string{"a?", "b?", "c?"}}))
	got, err := pg.GetSuggestions(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a?", "b?", "c?"}, got.Questions)

	_, err = pg.AppendMessages(ctx, "missing", []store.Message{{Role: "user"}})
	require.ErrorIs(t, err, store.ErrChatNotFound)
}

func TestIntegration_ConcurrentAppends(t *testing.T) {
	cleanDB(t)
	ctx := context.Background()
	pg := &PostgresStore{db: testDB}
	require.NoError(t, pg.UpsertChat(ctx, store.Chat{ID: "chat-1", Group: "web"}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pg.AppendMessages(ctx, "chat-1", []store.Message{{Role: "user"}, {Role: "assistant"}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := pg.ListMessages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for i, msg := range msgs {
		require.Equal(t, int64(i+1), msg.Sequence)
	}
}
