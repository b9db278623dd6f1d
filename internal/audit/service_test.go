package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDisabled(t *testing.T) {
	store := &MemStore{}
	svc := Service{Store: store, Enabled: false}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals", nil)
	require.NoError(t, svc.Record(context.Background(), Actor{Kind: ActorKindUser}, "", "", "", req, 201, nil))
	assert.Empty(t, store.Entries)
}

func TestRecordBuildsEntry(t *testing.T) {
	store := &MemStore{}
	now := time.Date(2023, 4, 15, 10, 0, 0, 0, time.UTC)
	svc := Service{Store: store, Enabled: true, Now: func() time.Time { return now }}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deals?draft=1", nil)
	req.Header.Set("User-Agent", "go-test")
	req.RemoteAddr = "10.1.2.3:9999"

	userID := "b7a0af19-9af3-41a1-9c53-bd6a9a5d2b86"
	err := svc.Record(context.Background(), Actor{Kind: ActorKindUser, UserID: &userID}, "", "", "deal-1", req, 201, nil)
	require.NoError(t, err)
	require.Len(t, store.Entries, 1)

	e := store.Entries[0]
	assert.Equal(t, "user", e.ActorKind)
	require.NotNil(t, e.ActorUserID)
	assert.Equal(t, userID, e.ActorUserID.String())
	assert.Equal(t, "POST /api/v1/deals", e.Action)
	assert.Equal(t, "deals", e.ResourceType)
	require.NotNil(t, e.ResourceID)
	assert.Equal(t, "deal-1", *e.ResourceID)
	assert.Equal(t, 201, e.Status)
	require.NotNil(t, e.IP)
	assert.Equal(t, "10.1.2.3", *e.IP)
	assert.JSONEq(t, `{"query":"draft=1"}`, string(e.Metadata))
	assert.True(t, e.CreatedAt.Equal(now))
}

func TestRecordAnonymousFallback(t *testing.T) {
	store := &MemStore{}
	svc := Service{Store: store, Enabled: true}

	req := httptest.NewRequest(http.MethodGet, "/public/quotes", nil)
	require.NoError(t, svc.Record(context.Background(), Actor{Kind: "weird"}, "", "", "", req, 0, nil))
	require.Len(t, store.Entries, 1)
	assert.Equal(t, "anonymous", store.Entries[0].ActorKind)
	assert.Equal(t, http.StatusOK, store.Entries[0].Status)
}

func TestMiddlewareRecordsAfterHandler(t *testing.T) {
	store := &MemStore{}
	recorder := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}

	handler := recorder.Middleware(HTTPConfig{ResourceType: "deals"})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/deals/42/status", nil))

	require.Len(t, store.Entries, 1)
	assert.Equal(t, http.StatusConflict, store.Entries[0].Status)
	assert.Equal(t, "deals", store.Entries[0].ResourceType)
	assert.Equal(t, "deals.update", store.Entries[0].Action)
}

func TestMiddlewareDerivesResourceAction(t *testing.T) {
	cases := []struct {
		method string
		want   string
	}{
		{http.MethodPost, "companies.create"},
		{http.MethodPut, "companies.update"},
		{http.MethodDelete, "companies.delete"},
		{http.MethodGet, "companies.view"},
	}
	for _, tc := range cases {
		store := &MemStore{}
		recorder := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}
		handler := recorder.Middleware(HTTPConfig{ResourceType: "companies"})(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, "/api/v1/companies", nil))

		require.Len(t, store.Entries, 1)
		assert.Equal(t, tc.want, store.Entries[0].Action)
	}
}

func TestMiddlewareExplicitActionWins(t *testing.T) {
	store := &MemStore{}
	recorder := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}
	handler := recorder.Middleware(HTTPConfig{Action: "quote.sign", ResourceType: "deals"})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/public/quotes/sign", nil))

	require.Len(t, store.Entries, 1)
	assert.Equal(t, "quote.sign", store.Entries[0].Action)
}
