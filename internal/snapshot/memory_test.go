package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	doc := &models.Document{
		ID:        "d1",
		Rev:       "1-abc",
		UpdatedAt: time.Now().UTC(),
		Fields:    map[string]any{"title": "x"},
	}

	require.NoError(t, store.Put(ctx, "todos", doc))

	got, err := store.Get(ctx, "todos", "d1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	// Документ изолирован от внешних мутаций
	got.Fields["title"] = "mutated"
	again, err := store.Get(ctx, "todos", "d1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Fields["title"])
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.Get(ctx, "todos", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	doc := &models.Document{ID: "d1", Fields: map[string]any{}}
	require.NoError(t, store.Put(ctx, "todos", doc))
	require.NoError(t, store.Delete(ctx, "todos", "d1"))

	_, err := store.Get(ctx, "todos", "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Удаление отсутствующего документа не ошибка
	assert.NoError(t, store.Delete(ctx, "todos", "d1"))
	assert.NoError(t, store.Delete(ctx, "unknown", "d1"))
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	docs, err := store.List(ctx, "todos")
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, store.Put(ctx, "todos", &models.Document{ID: "d1", Fields: map[string]any{}}))
	require.NoError(t, store.Put(ctx, "todos", &models.Document{ID: "d2", Fields: map[string]any{}}))
	require.NoError(t, store.Put(ctx, "notes", &models.Document{ID: "n1", Fields: map[string]any{}}))

	docs, err = store.List(ctx, "todos")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
