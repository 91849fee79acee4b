package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func setupTestLog(t *testing.T) *Log {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "changelog.db")

	log, err := New(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, log.Close())
	})

	return log
}

func testChange(docID string, op models.ChangeOp) models.ChangeEvent {
	var doc *models.Document
	if op != models.OpDelete {
		doc = &models.Document{
			ID:        docID,
			Rev:       "1-abc",
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
			Fields:    map[string]any{"title": "x"},
		}
	}
	return models.ChangeEvent{
		Op:         op,
		DocumentID: docID,
		Document:   doc,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		FromSync:   true,
	}
}

func TestLog_Append_AssignsSequences(t *testing.T) {
	ctx := context.Background()
	log := setupTestLog(t)

	seq1, err := log.Append(ctx, "todos", testChange("d1", models.OpInsert), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq1)

	seq2, err := log.Append(ctx, "todos", testChange("d2", models.OpInsert), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq2)

	// Независимые последовательности по коллекциям
	seq, err := log.Append(ctx, "notes", testChange("n1", models.OpInsert), "sess-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestLog_CurrentSequence(t *testing.T) {
	ctx := context.Background()
	log := setupTestLog(t)

	current, err := log.CurrentSequence(ctx, "todos")
	require.NoError(t, err)
	assert.Equal(t, int64(0), current)

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, "todos", testChange("d1", models.OpUpdate), "sess-1")
		require.NoError(t, err)
	}

	current, err = log.CurrentSequence(ctx, "todos")
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)
}

func TestLog_EntriesSince(t *testing.T) {
	ctx := context.Background()
	log := setupTestLog(t)

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, "todos", testChange("d1", models.OpUpdate), "sess-1")
		require.NoError(t, err)
	}

	entries, err := log.EntriesSince(ctx, "todos", 0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(2), entries[1].Seq)

	entries, err = log.EntriesSince(ctx, "todos", 4, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].Seq)

	entries, err = log.EntriesSince(ctx, "todos", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_EntriesSince_RoundTripsChange(t *testing.T) {
	ctx := context.Background()
	log := setupTestLog(t)

	change := testChange("d1", models.OpInsert)
	_, err := log.Append(ctx, "todos", change, "sess-1")
	require.NoError(t, err)

	entries, err := log.EntriesSince(ctx, "todos", 0, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, "todos", got.Collection)
	assert.Equal(t, "sess-1", got.OriginSession)
	assert.Equal(t, models.OpInsert, got.Change.Op)
	assert.Equal(t, "d1", got.Change.DocumentID)
	assert.Equal(t, int64(1), got.Change.Seq)
	require.NotNil(t, got.Change.Document)
	assert.Equal(t, "x", got.Change.Document.Fields["title"])
}

func TestLog_Delete_HasNoDocument(t *testing.T) {
	ctx := context.Background()
	log := setupTestLog(t)

	_, err := log.Append(ctx, "todos", testChange("d1", models.OpDelete), "sess-1")
	require.NoError(t, err)

	entries, err := log.EntriesSince(ctx, "todos", 0, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Change.Op)
	assert.Nil(t, entries[0].Change.Document)
}

func TestLog_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "changelog.db")

	log, err := New(ctx, dbPath)
	require.NoError(t, err)

	_, err = log.Append(ctx, "todos", testChange("d1", models.OpInsert), "sess-1")
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	current, err := reopened.CurrentSequence(ctx, "todos")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)

	seq, err := reopened.Append(ctx, "todos", testChange("d2", models.OpInsert), "sess-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestLog_ConcurrentAppend(t *testing.T) {
	const (
		writers          = 8
		appendsPerWriter = 25
	)

	ctx := context.Background()
	log := setupTestLog(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < appendsPerWriter; i++ {
				seq, err := log.Append(ctx, "todos", testChange("d1", models.OpInsert), "sess")
				assert.NoError(t, err)

				mu.Lock()
				assert.False(t, seen[seq], "duplicate sequence %d", seq)
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Строго возрастающие без пропусков и дубликатов
	total := int64(writers * appendsPerWriter)
	current, err := log.CurrentSequence(ctx, "todos")
	require.NoError(t, err)
	assert.Equal(t, total, current)

	entries, err := log.EntriesSince(ctx, "todos", 0, int(total))
	require.NoError(t, err)
	require.Len(t, entries, int(total))
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Seq)
	}
}
