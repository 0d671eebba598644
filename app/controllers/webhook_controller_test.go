package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/app/repository"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/metrics/counter"
	"github.com/ssq-labs/commentpilot/internal/pkg/testutil"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

const accountID = "17841400000000001"

func notification(changes ...string) string {
	return fmt.Sprintf(`{"object":"instagram","entry":[{"id":%q,"time":1767225600,"changes":[%s]}]}`,
		accountID, strings.Join(changes, ","))
}

func commentChange(id, text string) string {
	return fmt.Sprintf(`{"field":"comments","value":{"id":%q,"text":%q,"media":{"id":"m1"},"from":{"id":"u42"}}}`, id, text)
}

type webhookServer struct {
	app      *fiber.App
	repos    *repository.Repositories
	queue    *jobqueue.Queue
	pipeline *webhook.Pipeline
	outcomes *counter.Outcomes
}

func newWebhookServer(t *testing.T) *webhookServer {
	t.Helper()
	ctx := context.Background()

	repos := repository.NewRepositories(testutil.NewDB(t))
	user := &models.User{Name: "Lia", Email: "lia@example.com"}
	require.NoError(t, repos.User.Create(ctx, user))
	require.NoError(t, repos.Integration.Create(ctx, &models.Integration{
		UserID: user.ID, Platform: models.PlatformInstagram, PlatformUserID: accountID, AccessToken: "tok",
	}))

	client, _ := testutil.NewRedis(t)
	queue := jobqueue.NewQueue(client, 1)
	handler := webhook.HandlerFunc(func(ctx context.Context, row *models.WebhookLog) (interface{}, error) {
		return nil, nil
	})
	pipeline := webhook.NewPipeline(repos.WebhookLog, queue, handler, config.DefaultPipeline())

	wc := NewWebhookController("verify-me", repos.Integration, pipeline, 5*time.Second)
	wc.SetArchiveQueue(queue)
	outcomes := counter.New(client)
	wc.SetOutcomeRecorder(outcomes)

	app := fiber.New()
	app.Get("/webhooks/meta", wc.HandleVerify)
	app.Post("/webhooks/meta", wc.HandleReceive)
	return &webhookServer{app: app, repos: repos, queue: queue, pipeline: pipeline, outcomes: outcomes}
}

func (s *webhookServer) post(t *testing.T, body string) (int, IngestSummary) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/meta", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)

	var summary IngestSummary
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	}
	return resp.StatusCode, summary
}

func (s *webhookServer) readyJobs(t *testing.T) int64 {
	t.Helper()
	stats, err := s.queue.GetStats(context.Background())
	require.NoError(t, err)
	return stats.Ready
}

func TestHandleVerify(t *testing.T) {
	s := newWebhookServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"ok", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"missing challenge", "hub.mode=subscribe&hub.verify_token=verify-me", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/webhooks/meta?"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.body, string(body))
				assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
			}
		})
	}
}

func TestHandleReceive_NewThenDuplicate(t *testing.T) {
	s := newWebhookServer(t)
	body := notification(commentChange("c1", "love it"))

	status, summary := s.post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, IngestSummary{OK: true, Accepted: 1}, summary)

	row, err := s.repos.WebhookLog.GetByKey(context.Background(), "c1", models.EventTypeComment)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessing, row.Status)
	assert.Equal(t, "m1", row.PostID)
	assert.EqualValues(t, 2, s.readyJobs(t), "process and archive jobs")

	status, summary = s.post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, IngestSummary{OK: true, Duplicates: 1}, summary)
	assert.EqualValues(t, 2, s.readyJobs(t), "redelivery enqueues nothing")
}

func TestHandleReceive_Counts(t *testing.T) {
	s := newWebhookServer(t)
	body := `{"object":"instagram","entry":[
		{"id":"` + accountID + `","time":1,"changes":[
			` + commentChange("c1", "hi") + `,
			{"field":"comments","value":{"id":"c2","media":{"id":"m1"},"from":{"id":"u1"}}},
			{"field":"mentions","value":{"media_id":"m9"}}
		]},
		{"id":"unknown-account","time":1,"changes":[` + commentChange("c3", "hey") + `]}
	]}`

	status, summary := s.post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Rejected, "comment without text")
	assert.Equal(t, 2, summary.Skipped, "mentions field and unknown account")

	_, err := s.repos.WebhookLog.GetByKey(context.Background(), "c3", models.EventTypeComment)
	assert.True(t, repository.IsNotFound(err))

	totals, err := s.outcomes.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"accepted": 1, "rejected": 1, "skipped": 2}, totals)
}

func TestHandleReceive_IgnoresOtherObjects(t *testing.T) {
	s := newWebhookServer(t)
	status, summary := s.post(t, `{"object":"page","entry":[{"id":"1","changes":[]}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, summary.Accepted)
	assert.Zero(t, s.readyJobs(t))
}

func TestHandleReceive_BadBody(t *testing.T) {
	s := newWebhookServer(t)
	for _, body := range []string{`{"object":`, `{"object":"instagram"}`, `[]`} {
		status, _ := s.post(t, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}
}

func TestHandleReceive_RetriesFailedRow(t *testing.T) {
	ctx := context.Background()
	s := newWebhookServer(t)
	body := notification(commentChange("c1", "love it"))

	_, _ = s.post(t, body)
	row, err := s.repos.WebhookLog.GetByKey(ctx, "c1", models.EventTypeComment)
	require.NoError(t, err)
	ok, err := s.repos.WebhookLog.MarkFailed(ctx, row.ID, row.ClaimToken, "timeout", false, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	status, summary := s.post(t, body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, summary.Accepted, "failed row under the limit is re-dispatched")
}

type failingIngester struct{}

func (failingIngester) Ingest(ctx context.Context, ev webhook.Event) (webhook.Decision, *models.WebhookLog, error) {
	return "", nil, errors.New("database is locked")
}

func TestHandleReceive_StorageErrorIs500(t *testing.T) {
	s := newWebhookServer(t)
	wc := NewWebhookController("verify-me", s.repos.Integration, failingIngester{}, time.Second)
	app := fiber.New()
	app.Post("/", wc.HandleReceive)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(notification(commentChange("c1", "hi"))))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
