package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/repository"
	"github.com/piukhq/vela-sub000/internal/service"
)

type stubTransactions struct {
	resp *model.TransactionResponse
	err  error

	retailer string
	req      model.TransactionRequest
}

func (s *stubTransactions) Process(ctx context.Context, retailer string, req model.TransactionRequest) (*model.TransactionResponse, error) {
	s.retailer = retailer
	s.req = req
	return s.resp, s.err
}

type stubStatuses struct {
	resp *model.StatusChangeResponse
	err  error
}

func (s *stubStatuses) ChangeStatus(ctx context.Context, retailer string, req model.StatusChangeRequest) (*model.StatusChangeResponse, error) {
	return s.resp, s.err
}

func newTestMux(transactions TransactionProcessor, statuses StatusChanger) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewHandler(transactions, statuses, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Register(mux)
	return mux
}

func TestHealth(t *testing.T) {
	mux := newTestMux(&stubTransactions{}, &stubStatuses{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTransaction_OK(t *testing.T) {
	transactions := &stubTransactions{resp: &model.TransactionResponse{
		TransactionID: "tx-1",
		Decisions:     []model.CampaignDecision{{CampaignSlug: "coffee-club", Accepted: true, Adjustment: 800}},
	}}
	mux := newTestMux(transactions, &stubStatuses{})

	body := `{"id":"tx-1","account_holder_id":"holder-1","amount":800,"datetime":"2026-08-01T10:00:00Z"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/transaction", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-retailer", transactions.retailer)
	assert.Equal(t, "tx-1", transactions.req.TransactionID)

	var resp model.TransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Decisions, 1)
	assert.True(t, resp.Decisions[0].Accepted)
}

func TestTransaction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", service.ErrInvalidRequest, http.StatusUnprocessableEntity},
		{"no active campaigns", service.ErrNoActiveCampaigns, http.StatusNotFound},
		{"duplicate transaction", repository.ErrDuplicateTransaction, http.StatusConflict},
		{"unexpected", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&stubTransactions{err: tt.err}, &stubStatuses{})

			body := `{"id":"tx-1","account_holder_id":"holder-1","amount":800}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/transaction", strings.NewReader(body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTransaction_BadJSON(t *testing.T) {
	mux := newTestMux(&stubTransactions{}, &stubStatuses{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/transaction", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignStatus_OK(t *testing.T) {
	statuses := &stubStatuses{resp: &model.StatusChangeResponse{}}
	mux := newTestMux(&stubTransactions{}, statuses)

	body := `{"requested_status":"ENDED","campaign_slugs":["coffee-club"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/campaigns/status", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCampaignStatus_LastActiveCampaignConflict(t *testing.T) {
	statuses := &stubStatuses{
		resp: &model.StatusChangeResponse{Errors: []model.StatusChangeError{{
			Code:          model.ErrCodeInvalidStatusRequested,
			CampaignSlugs: []string{"coffee-club"},
		}}},
		err: service.ErrLastActiveCampaign,
	}
	mux := newTestMux(&stubTransactions{}, statuses)

	body := `{"requested_status":"ENDED","campaign_slugs":["coffee-club"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/campaigns/status", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp model.StatusChangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, model.ErrCodeInvalidStatusRequested, resp.Errors[0].Code)
}

func TestCampaignStatus_EnqueueFailure(t *testing.T) {
	statuses := &stubStatuses{err: service.ErrTaskEnqueue}
	mux := newTestMux(&stubTransactions{}, statuses)

	body := `{"requested_status":"ENDED","campaign_slugs":["coffee-club"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retailers/test-retailer/campaigns/status", strings.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
