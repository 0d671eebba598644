package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
)

type brokenStats struct{}

func (brokenStats) GetStats(ctx context.Context) (*jobqueue.Stats, error) {
	return nil, errors.New("redis: connection refused")
}

func newAdminApp(s *webhookServer, stats QueueStats) *fiber.App {
	ac := NewAdminWebhookController(s.repos.WebhookLog, s.pipeline.Dispatcher, stats)
	ac.SetOutcomeTotals(s.outcomes)
	app := fiber.New()
	app.Get("/webhooks", ac.HandleList)
	app.Get("/webhooks/:id", ac.HandleGet)
	app.Post("/webhooks/:id/retry", ac.HandleRetry)
	app.Get("/queue/stats", ac.HandleQueueStats)
	return app
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedRows(t *testing.T, s *webhookServer) (processing, failed *models.WebhookLog) {
	t.Helper()
	ctx := context.Background()
	status, _ := s.post(t, notification(commentChange("c1", "one"), commentChange("c2", "two")))
	require.Equal(t, http.StatusOK, status)

	processing, err := s.repos.WebhookLog.GetByKey(ctx, "c1", models.EventTypeComment)
	require.NoError(t, err)
	failed, err = s.repos.WebhookLog.GetByKey(ctx, "c2", models.EventTypeComment)
	require.NoError(t, err)
	ok, err := s.repos.WebhookLog.MarkFailed(ctx, failed.ID, failed.ClaimToken, "400 comment not found", true, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	return processing, failed
}

func TestAdmin_ListAndGet(t *testing.T) {
	s := newWebhookServer(t)
	_, failed := seedRows(t, s)
	app := newAdminApp(s, s.queue)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/webhooks?status=failed", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.EqualValues(t, 1, body["total"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "c2", items[0].(map[string]interface{})["webhook_id"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/webhooks?status=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/webhooks/"+itoa(failed.ID), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	row := decodeJSON(t, resp)
	assert.Equal(t, true, row["permanent"])
	assert.Equal(t, "400 comment not found", row["error_message"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/webhooks/999", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/webhooks/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_Retry(t *testing.T) {
	ctx := context.Background()
	s := newWebhookServer(t)
	processing, failed := seedRows(t, s)
	app := newAdminApp(s, s.queue)
	before := s.readyJobs(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/"+itoa(failed.ID)+"/retry", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, before+1, s.readyJobs(t))

	row, err := s.repos.WebhookLog.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessing, row.Status)
	assert.Zero(t, row.RetryCount, "permanent failures keep their retry_count")

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/"+itoa(processing.ID)+"/retry", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdmin_ListEchoesAppliedPage(t *testing.T) {
	s := newWebhookServer(t)
	seedRows(t, s)
	app := newAdminApp(s, s.queue)

	tests := []struct {
		target string
		offset int
		limit  int
	}{
		{"/webhooks?limit=9000", 0, 500},
		{"/webhooks?limit=0", 0, 50},
		{"/webhooks?limit=1&offset=-4", 0, 1},
		{"/webhooks", 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decodeJSON(t, resp)
			assert.EqualValues(t, tt.offset, body["offset"])
			assert.EqualValues(t, tt.limit, body["limit"])
			assert.LessOrEqual(t, len(body["items"].([]interface{})), tt.limit)
		})
	}
}

func TestAdmin_QueueStats(t *testing.T) {
	s := newWebhookServer(t)
	seedRows(t, s)

	resp, err := newAdminApp(s, s.queue).Test(httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)

	webhooks := body["webhooks"].(map[string]interface{})
	assert.EqualValues(t, 1, webhooks["processing"])
	assert.EqualValues(t, 1, webhooks["failed"])
	queue := body["queue"].(map[string]interface{})
	assert.EqualValues(t, 4, queue["ready"], "two process and two archive jobs")
	ingest := body["ingest"].(map[string]interface{})
	assert.EqualValues(t, 2, ingest["accepted"])

	resp, err = newAdminApp(s, brokenStats{}).Test(httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeJSON(t, resp)
	assert.Contains(t, body["queue_error"], "connection refused")
	assert.NotNil(t, body["webhooks"])
}

func itoa(id uint) string {
	return fmt.Sprint(id)
}
