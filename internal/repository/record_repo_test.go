package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badaboom1995/gekto-sub001/internal/db"
	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func newTestRepo(t *testing.T) *RecordRepository {
	t.Helper()
	conn, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRecordRepository(conn)
}

func TestSessionHistoryPreservesOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	transitions := []model.SessionState{
		model.StateLoading,
		model.StateReady,
		model.StateWorking,
		model.StateWaitingInput,
		model.StateWorking,
		model.StateReady,
	}
	for _, s := range transitions {
		repo.RecordSessionState("lizard-1", s)
	}
	repo.RecordSessionState("lizard-2", model.StateLoading)

	history, err := repo.SessionHistory(ctx, "lizard-1")
	require.NoError(t, err)
	require.Len(t, history, len(transitions))
	for i, rec := range history {
		assert.Equal(t, "lizard-1", rec.SessionID)
		assert.Equal(t, transitions[i], rec.State)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	plan := &model.ExecutionPlan{
		ID: "plan-1",
		Tasks: []model.Task{
			{ID: "task-1", Title: "write tests", Prompt: "add unit tests", AgentID: "lizard-1"},
			{ID: "task-2", Title: "fix lint", Prompt: "clean up warnings", AgentID: "lizard-2"},
		},
		Status:    model.PlanStatusCreated,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	repo.RecordPlan(plan)

	got, err := repo.Plan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, plan.Tasks, got.Tasks)
	assert.Equal(t, model.PlanStatusCreated, got.Status)

	repo.RecordPlanStatus("plan-1", model.PlanStatusExecuting)
	got, err = repo.Plan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusExecuting, got.Status)
}

func TestPlanUnknownIDReturnsNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Plan(context.Background(), "plan-404")
	assert.ErrorIs(t, err, model.ErrPlanNotFound)

	_, err = repo.SessionHistory(context.Background(), "lizard-404")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

// For any sequence of recorded transitions, the stored history reads
// back identical and in order.
func TestRecordedHistoryMatchesInputProperty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	stateGen := gen.OneConstOf(
		model.StateLoading,
		model.StateReady,
		model.StateWorking,
		model.StateWaitingInput,
		model.StateCompleted,
		model.StateError,
	)

	properties.Property("history reads back in recorded order", prop.ForAll(
		func(states []model.SessionState) bool {
			id := "prop-" + generateID()

			for _, s := range states {
				repo.RecordSessionState(id, s)
			}

			history, err := repo.SessionHistory(ctx, id)
			if len(states) == 0 {
				return err == model.ErrSessionNotFound
			}
			if err != nil || len(history) != len(states) {
				return false
			}
			for i, rec := range history {
				if rec.State != states[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(stateGen),
	))

	properties.TestingRun(t)
}
