package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/core"
)

func TestBudgetOverview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.repo.SetTarget(ctx, testUser, "Food & Dining", "2024-03", core.Cents(40000))
	require.NoError(t, err)
	_, err = env.repo.Accumulate(ctx, testUser, "Food & Dining", "2024-03", core.Cents(10000))
	require.NoError(t, err)
	_, err = env.repo.Accumulate(ctx, testUser, "Shopping", "2024-02", core.Cents(999))
	require.NoError(t, err)

	rr := env.do(t, http.MethodGet, "/api/budget", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, "2024-03", data["month"])
	assert.InDelta(t, 400.0, data["total_target"], 0.001)
	assert.InDelta(t, 300.0, data["remaining"], 0.001)
	rows := data["categories"].([]any)
	require.Len(t, rows, 1)
	assert.InDelta(t, 25.0, rows[0].(map[string]any)["percent_used"], 0.001)

	rr = env.do(t, http.MethodGet, "/api/budget?month=2024-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data = decodeBody(t, rr)["data"].(map[string]any)
	assert.InDelta(t, 9.99, data["total_spent"], 0.001)

	rr = env.do(t, http.MethodGet, "/api/budget?month=02-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, day := range []int{1, 9, 15} {
		steps := int64(day * 1000)
		_, err := env.repo.UpsertHealth(ctx, core.HealthMetrics{UserID: testUser, Date: core.NewDate(2024, 3, day), Steps: &steps})
		require.NoError(t, err)
	}

	rr := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decodeBody(t, rr)["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-15", rows[0].(map[string]any)["date"])
	assert.Equal(t, "2024-03-09", rows[1].(map[string]any)["date"])

	rr = env.do(t, http.MethodGet, "/api/health?days=30", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["data"].([]any), 3)

	for _, bad := range []string{"0", "-1", "abc", "1000"} {
		rr = env.do(t, http.MethodGet, "/api/health?days="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.repo.IngestTransaction(ctx, core.Transaction{
		UserID:        testUser,
		AccountID:     "acct-1",
		TransactionID: "tx-1",
		Amount:        core.Cents(1599),
		Description:   "NETFLIX.COM",
		Merchant:      "Netflix",
		AccountName:   "Venture",
		Category:      "Entertainment",
		Date:          core.NewDate(2024, 3, 2),
	})
	require.NoError(t, err)

	rr := env.do(t, http.MethodGet, "/api/transactions?month=2024-03", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decodeBody(t, rr)["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "tx-1", rows[0].(map[string]any)["transaction_id"])

	rr = env.do(t, http.MethodGet, "/api/transactions?month=2024-04", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody(t, rr)["data"])
}

func TestGlucose(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.SaveHealthSync(context.Background(), []core.GlucoseReading{
		{UserID: testUser, RecordedAt: testNow.Add(-30 * time.Hour), Value: 90},
		{UserID: testUser, RecordedAt: testNow.Add(-3 * time.Hour), Value: 110},
	}, nil))

	rr := env.do(t, http.MethodGet, "/api/glucose", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["data"].([]any), 1)

	rr = env.do(t, http.MethodGet, "/api/glucose?hours=48", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["data"].([]any), 2)
}
