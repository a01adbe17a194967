package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/config"
	"lifedash/internal/core"
)

var fetchNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func TestDexcom_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/users/self/egvs", r.URL.Path)
		assert.Equal(t, "2024-03-08T12:00:00", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2024-03-15T12:00:00", r.URL.Query().Get("endDate"))
		_, _ = io.WriteString(w, `{"egvs":[
			{"systemTime":"2024-03-14T08:00:00","value":110,"trend":"flat","trendRate":0.1},
			{"systemTime":"2024-03-14T22:55:00","value":131,"trend":"singleUp","trendRate":2.1},
			{"systemTime":"2024-03-14T12:00:00","value":150,"trend":"flat"},
			{"systemTime":"2024-03-15T07:00:00","value":98,"trend":"flat"},
			{"systemTime":"2024-03-15T07:05:00","value":null,"trend":"none"}
		]}`)
	}))
	defer srv.Close()

	d := NewDexcom(config.ProviderConfig{BaseURL: srv.URL})
	batch, err := d.Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.NoError(t, err)

	assert.Len(t, batch.Glucose, 4)
	require.Len(t, batch.Health, 2)
	assert.Equal(t, "2024-03-14", batch.Health[0].Date.String())
	assert.Equal(t, 131.0, *batch.Health[0].Glucose)
	assert.Equal(t, "2024-03-15", batch.Health[1].Date.String())
	assert.Equal(t, 98.0, *batch.Health[1].Glucose)
	assert.Equal(t, "user-1", batch.Health[0].UserID)
}

func TestDexcom_FetchBadTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"egvs":[{"systemTime":"yesterday","value":110}]}`)
	}))
	defer srv.Close()

	_, err := NewDexcom(config.ProviderConfig{BaseURL: srv.URL}).
		Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
}

func TestCapitalOne_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts":
			_, _ = io.WriteString(w, `{"accounts":[
				{"accountId":"a1","nickname":"Everyday Card","productName":"Quicksilver"},
				{"accountId":"a2","productName":"360 Checking"}
			]}`)
		case "/accounts/a1/transactions":
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `{"transactions":[
				{"transactionId":"t1","amount":-45.50,"description":"WHOLE FOODS GROCERY","transactionDate":"2024-03-10","merchantName":"Whole Foods"},
				{"transactionId":"t2","amount":250.00,"description":"PAYMENT THANK YOU","transactionDate":"2024-03-11","merchantName":""}
			]}`)
		case "/accounts/a2/transactions":
			_, _ = io.WriteString(w, `{"transactions":[
				{"transactionId":"t3","amount":"-1200","description":"Monthly Rent","transactionDate":"2024-03-01T00:00:00Z","merchantName":"Landlord"},
				{"transactionId":"t4","amount":-1e17,"description":"Garbled","transactionDate":"2024-03-02","merchantName":""}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCapitalOne(config.ProviderConfig{BaseURL: srv.URL})
	batch, err := c.Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, 1, batch.Skipped, "amounts beyond the cent range are skipped")

	first := batch.Transactions[0].Categorized()
	assert.Equal(t, "t1", first.TransactionID)
	assert.Equal(t, int64(4550), first.Amount.Cents)
	assert.Equal(t, "Everyday Card", first.AccountName)
	assert.Equal(t, core.CategoryFood, first.Category)
	assert.Equal(t, "2024-03-10", first.Date.String())

	second := batch.Transactions[1].Categorized()
	assert.Equal(t, "360 Checking", second.AccountName)
	assert.Equal(t, int64(120000), second.Amount.Cents)
	assert.Equal(t, core.CategoryHousing, second.Category)
	assert.Equal(t, "a2", second.AccountID)
}

func TestCapitalOne_FetchFailsWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts" {
			_, _ = io.WriteString(w, `{"accounts":[{"accountId":"a1"},{"accountId":"a2"}]}`)
			return
		}
		if r.URL.Path == "/accounts/a1/transactions" {
			_, _ = io.WriteString(w, `{"transactions":[{"transactionId":"t1","amount":-1,"description":"x","transactionDate":"2024-03-10"}]}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	batch, err := NewCapitalOne(config.ProviderConfig{BaseURL: srv.URL}).
		Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	assert.Empty(t, batch.Transactions)
}

func TestQuickBooks_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/company/realm-1/query", r.URL.Path)
		q := r.URL.Query().Get("query")
		switch {
		case q == "SELECT * FROM Purchase WHERE TxnDate >= '2023-12-16' MAXRESULTS 100":
			_, _ = io.WriteString(w, `{"QueryResponse":{"Purchase":[
				{"Id":"77","TxnDate":"2024-03-02","PrivateNote":"team lunch","EntityRef":{"name":"Bistro"},"Line":[
					{"Id":"1","Amount":84.20,"DetailType":"AccountBasedExpenseLineDetail","AccountBasedExpenseLineDetail":{"AccountRef":{"name":"Travel Meals"}}},
					{"Id":"2","Amount":19.99,"Description":"Adobe","DetailType":"AccountBasedExpenseLineDetail","AccountBasedExpenseLineDetail":{"AccountRef":{"name":"Software"}}},
					{"Id":"3","Amount":5,"DetailType":"ItemBasedExpenseLineDetail"},
					{"Id":"4","Amount":0,"DetailType":"AccountBasedExpenseLineDetail"}
				]},
				{"Id":"78","TxnDate":"2024-02-20","Line":[
					{"Id":"1","Amount":300,"DetailType":"AccountBasedExpenseLineDetail","AccountBasedExpenseLineDetail":{"AccountRef":{"name":"Bank Charges"}}}
				]}
			]}}`)
		case q == "SELECT * FROM Invoice WHERE TxnDate >= '2023-12-16' MAXRESULTS 100":
			_, _ = io.WriteString(w, `{"QueryResponse":{"Invoice":[
				{"Id":"1","TxnDate":"2024-03-03","TotalAmt":1000.10},
				{"Id":"2","TxnDate":"2024-03-09","TotalAmt":500},
				{"Id":"3","TxnDate":"2024-02-28","TotalAmt":9999}
			]}}`)
		default:
			t.Errorf("unexpected query %q", q)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	qb := NewQuickBooks(config.ProviderConfig{BaseURL: srv.URL})
	batch, err := qb.Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", RealmID: "realm-1", Now: fetchNow})
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 3)

	meals := batch.Transactions[0].Categorized()
	assert.Equal(t, "qb_77_1", meals.TransactionID)
	assert.Equal(t, "team lunch", meals.Description)
	assert.Equal(t, "Bistro", meals.Merchant)
	assert.Equal(t, "QuickBooks", meals.AccountName)
	assert.Equal(t, "quickbooks", meals.AccountID)
	assert.Equal(t, core.CategoryTravel, meals.Category)
	assert.Equal(t, int64(8420), meals.Amount.Cents)

	software := batch.Transactions[1].Categorized()
	assert.Equal(t, "Adobe", software.Description)
	assert.Equal(t, core.CategorySoftware, software.Category)

	other := batch.Transactions[2].Categorized()
	assert.Equal(t, "QuickBooks Expense", other.Description)
	assert.Equal(t, "Unknown", other.Merchant)
	assert.Equal(t, core.CategoryBusiness, other.Category)

	require.Len(t, batch.Targets, 1)
	assert.Equal(t, core.CategoryIncome, batch.Targets[0].Category)
	assert.Equal(t, core.Month("2024-03"), batch.Targets[0].Month)
	assert.Equal(t, int64(150010), batch.Targets[0].Amount.Cents)
}

func TestQuickBooks_FetchWithoutRealm(t *testing.T) {
	_, err := NewQuickBooks(config.ProviderConfig{}).Fetch(context.Background(), http.DefaultClient, FetchRequest{UserID: "user-1", Now: fetchNow})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRealm)
	assert.False(t, core.IsRetryable(err))
}

func TestGoogleFit_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fitness/v1/users/me/dataset:aggregate", r.URL.Path)
		var body struct {
			AggregateBy []struct {
				DataTypeName string `json:"dataTypeName"`
			} `json:"aggregateBy"`
			StartTimeMillis string `json:"startTimeMillis"`
			EndTimeMillis   string `json:"endTimeMillis"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, googleFitStepsType, body.AggregateBy[0].DataTypeName)
		assert.Equal(t, "1710460800000", body.StartTimeMillis)
		assert.Equal(t, "1710547200000", body.EndTimeMillis)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":[{"dataset":[{"point":[
			{"value":[{"intVal":4200}]},
			{"value":[{"intVal":1300}]}
		]}]}]}`)
	}))
	defer srv.Close()

	g := NewGoogleFit(config.ProviderConfig{BaseURL: srv.URL + "/fitness/v1/users/"})
	batch, err := g.Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.NoError(t, err)
	require.Len(t, batch.Health, 1)
	assert.Equal(t, "2024-03-15", batch.Health[0].Date.String())
	assert.Equal(t, int64(5500), *batch.Health[0].Steps)
}

func TestGoogleFit_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"invalid credentials"}}`)
	}))
	defer srv.Close()

	g := NewGoogleFit(config.ProviderConfig{BaseURL: srv.URL + "/fitness/v1/users/"})
	_, err := g.Fetch(context.Background(), srv.Client(), FetchRequest{UserID: "user-1", Now: fetchNow})
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	assert.False(t, core.IsRetryable(err))
}
