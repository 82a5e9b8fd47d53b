package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/search4all/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestSessionRepository_Record(t *testing.T) {
	repo := NewSessionRepository(setupTestKV(t, 8), 10)
	ctx := context.Background()

	_, err := repo.GetRecord(ctx, "sid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.PutRecord(ctx, "sid", &domain.SessionRecord{Query: "q1", RawText: "t1"}))
	require.NoError(t, repo.PutRecord(ctx, "sid", &domain.SessionRecord{Query: "q2", RawText: "t2"}))

	got, err := repo.GetRecord(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, &domain.SessionRecord{Query: "q2", RawText: "t2"}, got)
}

func TestSessionRepository_HistoryIndependentOfRecord(t *testing.T) {
	repo := NewSessionRepository(setupTestKV(t, 8), 10)
	ctx := context.Background()

	turn := domain.Turn{
		Query:            "what is go",
		SearchResults:    []domain.SearchContext{{Name: "Go", URL: "https://go.dev", Snippet: "Go"}},
		LLMResponse:      strPtr("a language"),
		RelatedQuestions: []domain.RelatedQuestion{{Question: "who made go"}},
	}
	require.NoError(t, repo.AppendTurn(ctx, "sid", turn))

	_, err := repo.GetRecord(ctx, "sid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history, err := repo.GetHistory(ctx, "sid")
	require.NoError(t, err)
	if diff := cmp.Diff([]domain.Turn{turn}, history); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionRepository_HistoryWindow(t *testing.T) {
	const max = 3
	repo := NewSessionRepository(setupTestKV(t, 0), max)
	ctx := context.Background()

	for i := 0; i < max+1; i++ {
		require.NoError(t, repo.AppendTurn(ctx, "sid", domain.Turn{Query: fmt.Sprintf("q%d", i)}))
	}

	history, err := repo.GetHistory(ctx, "sid")
	require.NoError(t, err)
	require.Len(t, history, max)
	assert.Equal(t, "q1", history[0].Query)
	assert.Equal(t, "q3", history[max-1].Query)
}

func TestSessionRepository_NullFieldsSurvive(t *testing.T) {
	repo := NewSessionRepository(setupTestKV(t, 0), 10)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurn(ctx, "sid", domain.Turn{Query: "q"}))

	history, err := repo.GetHistory(ctx, "sid")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].SearchResults)
	assert.Nil(t, history[0].LLMResponse)
	assert.Nil(t, history[0].RelatedQuestions)
}

func TestSessionRepository_Delete(t *testing.T) {
	repo := NewSessionRepository(setupTestKV(t, 8), 10)
	ctx := context.Background()

	require.NoError(t, repo.PutRecord(ctx, "sid", &domain.SessionRecord{Query: "q", RawText: "t"}))
	require.NoError(t, repo.AppendTurn(ctx, "sid", domain.Turn{Query: "q"}))
	require.NoError(t, repo.Delete(ctx, "sid"))

	_, err := repo.GetRecord(ctx, "sid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetHistory(ctx, "sid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepository_SkipsUndecodableTurns(t *testing.T) {
	kv := setupTestKV(t, 0)
	repo := NewSessionRepository(kv, 10)
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, HistoryKey("sid"), []byte(`[{"query":"ok"},{"query":42},{"query":"also ok"}]`)))

	history, err := repo.GetHistory(ctx, "sid")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].Query)
	assert.Equal(t, "also ok", history[1].Query)
}
