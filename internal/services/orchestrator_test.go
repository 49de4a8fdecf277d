package services

import (
	"context"
	"errors"
	"testing"

	"github.com/docsense/backend/internal/models"
	"github.com/docsense/backend/internal/repository"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(ledger *fakeLedger, searcher *fakeSearcher) *RetrievalOrchestrator {
	logger := logrus.New()
	return NewRetrievalOrchestrator(
		ledger,
		ledger,
		searcher,
		NewTrendTracker(ledger, logger),
		newEstimator(ledger),
		logger,
	)
}

func twoResults() []retrieval.RankedResult {
	return []retrieval.RankedResult{
		{ResultID: "chunk-17", Modality: "text", Score: 0.91},
		{ResultID: "fig-3", Modality: "image", Score: 0.64},
	}
}

func TestHandle_EndToEnd(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	searcher := &fakeSearcher{results: twoResults()}

	orchestrator := newOrchestrator(ledger, searcher)

	queryText := "what is a derivative?"
	outcome, err := orchestrator.Handle(context.Background(), alice.ID, queryText, models.StyleShort)
	require.NoError(t, err)

	require.NotZero(t, outcome.QueryID)
	assert.Len(t, outcome.Results, 2)

	// Query and its exposures were persisted together
	interactions, err := ledger.GetByQuery(outcome.QueryID)
	require.NoError(t, err)
	require.Len(t, interactions, 2)
	assert.Equal(t, "chunk-17", interactions[0].ResultID)
	assert.False(t, interactions[0].Clicked)

	// Trend counter bumped once, under the normalized key
	assert.Equal(t, 1, ledger.trends[NormalizeQuery(queryText)])

	// Profile reflects exactly this history
	require.NotNil(t, outcome.Pattern)
	assert.Equal(t, float64(len(queryText)), outcome.Pattern.AvgQueryLength)
	assert.Equal(t, 2, outcome.Pattern.TotalInteractions)
	assert.Equal(t, models.StyleShort, outcome.Pattern.PreferredStyle)
}

func TestHandle_UnknownStudent(t *testing.T) {
	ledger := newFakeLedger()
	searcher := &fakeSearcher{results: twoResults()}
	orchestrator := newOrchestrator(ledger, searcher)

	_, err := orchestrator.Handle(context.Background(), 42, "anything", models.StyleUnset)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	assert.Empty(t, ledger.queries, "no query row may be created for an unknown student")
}

func TestHandle_SearchFailureWritesNothing(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	searcher := &fakeSearcher{err: errors.New("index unavailable")}
	orchestrator := newOrchestrator(ledger, searcher)

	_, err := orchestrator.Handle(context.Background(), alice.ID, "orphan question", models.StyleUnset)
	require.Error(t, err)
	assert.Empty(t, ledger.queries)
	assert.Empty(t, ledger.trends)
}

func TestHandle_TransientStoreErrorRetried(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	ledger.transientFailures = 2
	searcher := &fakeSearcher{results: twoResults()}
	orchestrator := newOrchestrator(ledger, searcher)

	outcome, err := orchestrator.Handle(context.Background(), alice.ID, "retry me", models.StyleShort)
	require.NoError(t, err)
	assert.NotZero(t, outcome.QueryID)

	// The whole unit was written exactly once
	assert.Len(t, ledger.queries, 1)
	assert.Len(t, ledger.interactions, 2)
}

func TestHandle_RecomputeFailureDegradesToNoHint(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	ledger.upsertErr = errors.New("disk full")
	searcher := &fakeSearcher{results: twoResults()}
	orchestrator := newOrchestrator(ledger, searcher)

	outcome, err := orchestrator.Handle(context.Background(), alice.ID, "still answered", models.StyleShort)
	require.NoError(t, err, "a failed recompute must not block the answer")
	assert.Nil(t, outcome.Pattern)
	assert.Len(t, outcome.Results, 2)
}

func TestHandle_UnsetStyleUsesCurrentPreference(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	searcher := &fakeSearcher{results: twoResults()}
	orchestrator := newOrchestrator(ledger, searcher)

	_, err := orchestrator.Handle(context.Background(), alice.ID, "first question", models.StyleBulleted)
	require.NoError(t, err)

	// Second ask without a style: the stored preference becomes the hint
	outcome, err := orchestrator.Handle(context.Background(), alice.ID, "second question", models.StyleUnset)
	require.NoError(t, err)
	assert.Equal(t, models.StyleBulleted, searcher.lastStyle)
	assert.Equal(t, models.StyleBulleted, outcome.Pattern.PreferredStyle)
}

func TestHandle_InvalidStyleRejected(t *testing.T) {
	ledger := newFakeLedger()
	alice := seedStudent(t, ledger, "alice")
	orchestrator := newOrchestrator(ledger, &fakeSearcher{})

	_, err := orchestrator.Handle(context.Background(), alice.ID, "question", "verbose")
	require.Error(t, err)
	assert.Empty(t, ledger.queries)
}
