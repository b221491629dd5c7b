package infra

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

func newTestStore(t *testing.T, maxEntries int) *HistoryStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewHistoryStore(dbPath, maxEntries, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertAt(t *testing.T, store *HistoryStore, content, typ string, ts time.Time) *domain.Entry {
	t.Helper()
	e := &domain.Entry{Content: content, Type: typ, Timestamp: ts}
	_, err := store.Upsert(context.Background(), e)
	require.NoError(t, err)
	return e
}

func TestUpsert_DeduplicatesByContent(t *testing.T) {
	store := newTestStore(t, 5)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := &domain.Entry{Content: "A", Type: domain.TypePlainText, Timestamp: base}
	res, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, res.IsNew)

	insertAt(t, store, "B", domain.TypePlainText, base.Add(time.Second))

	// Same content again: timestamp refreshes, no new row, id is stable.
	second := &domain.Entry{Content: "A", Type: domain.TypePlainText, Timestamp: base.Add(2 * time.Second)}
	res, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Equal(t, first.ID, second.ID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	entries, err := store.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// "A" now carries the later timestamp, so it sorts first.
	assert.Equal(t, "A", entries[0].Content)
	assert.Equal(t, base.Add(2*time.Second), entries[0].Timestamp.UTC())
}

func TestUpsert_EvictsOldestBeyondCap(t *testing.T) {
	store := newTestStore(t, 5)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		insertAt(t, store, fmt.Sprintf("entry-%d", i), domain.TypePlainText, base.Add(time.Duration(i)*time.Second))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, int64(5), "cap must hold after every upsert")
	}

	entries, err := store.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// The five most recent survive, newest first.
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("entry-%d", 9-i), e.Content)
	}
}

func TestUpsert_RepeatedContentDoesNotGrow(t *testing.T) {
	store := newTestStore(t, 5)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "A", domain.TypePlainText, base)
	insertAt(t, store, "B", domain.TypePlainText, base.Add(time.Second))
	insertAt(t, store, "A", domain.TypePlainText, base.Add(2*time.Second))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSearch_SubSecondOrdering(t *testing.T) {
	store := newTestStore(t, 100)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// All three land in the same second; the stored text form must still
	// sort in time order (variable-width fractions would not).
	insertAt(t, store, "older", domain.TypePlainText, base.Add(500*time.Millisecond))
	insertAt(t, store, "newer", domain.TypePlainText, base.Add(520*time.Millisecond))
	insertAt(t, store, "whole second", domain.TypePlainText, base)

	entries, err := store.Search(context.Background(), domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newer", entries[0].Content)
	assert.Equal(t, "older", entries[1].Content)
	assert.Equal(t, "whole second", entries[2].Content)
}

func TestUpsert_EvictionWithSubSecondTimestamps(t *testing.T) {
	store := newTestStore(t, 1)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "newer", domain.TypePlainText, base.Add(520*time.Millisecond))
	insertAt(t, store, "older", domain.TypePlainText, base.Add(500*time.Millisecond))

	// Eviction removes the oldest by timestamp, regardless of insert order.
	entries, err := store.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "newer", entries[0].Content)
}

func TestSearch_TypeAliases(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "https://example.com", domain.TypeURL, base)
	insertAt(t, store, "plain words", domain.TypePlainText, base.Add(time.Second))
	insertAt(t, store, "styled words", domain.TypeRTF, base.Add(2*time.Second))
	insertAt(t, store, "<png data: 42 bytes>", domain.TypePNG, base.Add(3*time.Second))

	urls, err := store.Search(ctx, domain.SearchFilter{Type: "url"})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, domain.TypeURL, urls[0].Type)

	// "text" matches both plain text and RTF.
	textual, err := store.Search(ctx, domain.SearchFilter{Type: "text"})
	require.NoError(t, err)
	assert.Len(t, textual, 2)

	textual2, err := store.Search(ctx, domain.SearchFilter{Type: "textual"})
	require.NoError(t, err)
	assert.Len(t, textual2, 2)

	// Exact match for anything else.
	pngs, err := store.Search(ctx, domain.SearchFilter{Type: domain.TypePNG})
	require.NoError(t, err)
	assert.Len(t, pngs, 1)

	none, err := store.Search(ctx, domain.SearchFilter{Type: "public.jpeg"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_QuerySubstring(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "the quick brown fox", domain.TypePlainText, base)
	insertAt(t, store, "lazy dog", domain.TypePlainText, base.Add(time.Second))
	insertAt(t, store, "100% done", domain.TypePlainText, base.Add(2*time.Second))

	got, err := store.Search(ctx, domain.SearchFilter{Query: "quick"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "the quick brown fox", got[0].Content)

	// LIKE metacharacters in the query are literal.
	got, err = store.Search(ctx, domain.SearchFilter{Query: "100%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% done", got[0].Content)
}

func TestSearch_LimitAndOffset(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		insertAt(t, store, fmt.Sprintf("entry-%d", i), domain.TypePlainText, base.Add(time.Duration(i)*time.Second))
	}

	page, err := store.Search(ctx, domain.SearchFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "entry-3", page[0].Content)
	assert.Equal(t, "entry-2", page[1].Content)

	// Offset without limit is ignored at the store level.
	all, err := store.Search(ctx, domain.SearchFilter{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestSearch_DateRange(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		insertAt(t, store, fmt.Sprintf("entry-%d", i), domain.TypePlainText, base.Add(time.Duration(i)*time.Minute))
	}

	got, err := store.Search(ctx, domain.SearchFilter{
		Start: base.Add(1 * time.Minute),
		End:   base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDeleteByID(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	e := insertAt(t, store, "delete me", domain.TypePlainText, time.Now())

	deleted, err := store.DeleteByID(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting a missing id is a normal outcome, not an error.
	deleted, err = store.DeleteByID(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteAll(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "A", domain.TypePlainText, base)
	insertAt(t, store, "B", domain.TypePlainText, base.Add(time.Second))

	require.NoError(t, store.DeleteAll(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteMatching_LimitDeletesMostRecent(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		insertAt(t, store, fmt.Sprintf("entry-%d", i), domain.TypePlainText, base.Add(time.Duration(i)*time.Second))
	}

	// Limit deletes the N most recent matches, not the oldest.
	res, err := store.DeleteMatching(ctx, domain.SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)
	assert.Equal(t, int64(3), res.Remaining)

	entries, err := store.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry-2", entries[0].Content)
	assert.Equal(t, "entry-0", entries[2].Content)
}

func TestDeleteMatching_Predicate(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	insertAt(t, store, "https://example.com", domain.TypeURL, base)
	insertAt(t, store, "plain one", domain.TypePlainText, base.Add(time.Second))
	insertAt(t, store, "plain two", domain.TypePlainText, base.Add(2*time.Second))

	res, err := store.DeleteMatching(ctx, domain.SearchFilter{Type: "text"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)
	assert.Equal(t, int64(1), res.Remaining)

	remaining, err := store.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.TypeURL, remaining[0].Type)
}

func TestOpen_HealsDuplicateContent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	store, err := NewHistoryStore(dbPath, 100, nil, zap.NewNop())
	require.NoError(t, err)

	// Simulate a pre-dedup database by inserting duplicate content rows
	// directly, bypassing Upsert.
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.db.Exec(
			`INSERT INTO entries (id, content, type, timestamp) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("dup-id-%d", i), "duplicated", domain.TypePlainText,
			base.Add(time.Duration(i)*time.Second).Format(timeLayout))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	// Reopen: duplicates collapse to the latest-inserted row.
	store, err = NewHistoryStore(dbPath, 100, nil, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Search(context.Background(), domain.SearchFilter{Query: "duplicated"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dup-id-2", entries[0].ID)
}

func TestNewHistoryStore_RejectsNonPositiveCap(t *testing.T) {
	_, err := NewHistoryStore(filepath.Join(t.TempDir(), "x.db"), 0, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestHistoryStore_EncryptedRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewHistoryStore(dbPath, 10, key, zap.NewNop())
	require.NoError(t, err)

	insertAt(t, store, "secret entry", domain.TypePlainText, time.Now())
	require.NoError(t, store.Close())

	// Reopen with the same key.
	store, err = NewHistoryStore(dbPath, 10, key, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
