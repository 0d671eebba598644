package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/internal/pkg/archive"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/testutil"
	"github.com/ssq-labs/commentpilot/internal/pkg/webhook"
)

func TestNew_RunsPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	client, _ := testutil.NewRedis(t)
	manager := jobqueue.NewManager(jobqueue.NewQueue(client, 1))

	settings := Settings{
		Pipeline: config.DefaultPipeline(),
		Meta:     config.Meta{VerifyToken: "v", GraphBaseURL: "http://127.0.0.1:1"},
		LLM:      config.LLM{BaseURL: "http://127.0.0.1:1", Model: "gemini-test", MaxOutputTokens: 10},
		Archive:  &archive.Config{},
	}
	svc, err := New(ctx, testutil.NewDB(t), manager, settings)
	require.NoError(t, err)
	assert.Nil(t, svc.Archiver, "archiving is off unless enabled")

	user := &models.User{Name: "Lia", Email: "lia@example.com"}
	require.NoError(t, svc.Repos.User.Create(ctx, user))
	expired := time.Now().UTC().Add(-time.Hour)
	integration := &models.Integration{
		UserID: user.ID, Platform: models.PlatformInstagram, PlatformUserID: "acct-1",
		AccessToken: "tok", ExpiresAt: &expired,
	}
	require.NoError(t, svc.Repos.Integration.Create(ctx, integration))

	svc.RegisterWorkers()
	manager.Start()
	t.Cleanup(manager.Stop)

	decision, row, err := svc.Pipeline.Ingest(ctx, webhook.Event{
		WebhookID:     "c1",
		EventType:     models.EventTypeComment,
		IntegrationID: integration.ID,
		PostID:        "m1",
		Payload:       []byte(`{"comment_id":"c1","text":"hi","media_id":"m1","author_id":"u1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, webhook.DecisionProcess, decision)

	require.Eventually(t, func() bool {
		got, err := svc.Repos.WebhookLog.GetByID(ctx, row.ID)
		return err == nil && got.Status == models.WebhookStatusFailed
	}, 3*time.Second, 20*time.Millisecond)

	got, err := svc.Repos.WebhookLog.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, got.Permanent, "expired token is not retried")
	assert.Zero(t, got.RetryCount)
	assert.Contains(t, got.ErrorText(), "expired")
}
