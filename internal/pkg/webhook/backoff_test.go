package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/app/models"
)

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(30*time.Second, 30*time.Minute, 5, nil)

	tests := []struct {
		n        int
		expected time.Duration
	}{
		{-1, 30 * time.Second},
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{200, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			assert.Equal(t, tt.expected, b.Delay(tt.n))
		})
	}
}

func TestBackoff_Due(t *testing.T) {
	b := NewBackoff(time.Minute, time.Hour, 3, nil)
	last := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	row := &models.WebhookLog{Status: models.WebhookStatusFailed, RetryCount: 1, LastAttemptAt: &last}
	assert.False(t, b.Due(row, last.Add(time.Minute)))
	assert.True(t, b.Due(row, last.Add(2*time.Minute)))

	row.Permanent = true
	assert.False(t, b.Due(row, last.Add(time.Hour)))

	row.Permanent = false
	row.RetryCount = 3
	assert.False(t, b.Due(row, last.Add(time.Hour)))
}

func TestBackoff_OnFailure(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	b := NewBackoff(time.Second, time.Minute, 2, q)

	scheduled, err := b.OnFailure(ctx, 7, 1, false)
	require.NoError(t, err)
	assert.True(t, scheduled)
	require.Len(t, q.scheduled, 1)
	assert.Equal(t, 2*time.Second, q.scheduled[0].delay)
	assert.Equal(t, uint(7), q.scheduled[0].payload.WebhookLogID)

	scheduled, err = b.OnFailure(ctx, 7, 2, false)
	require.NoError(t, err)
	assert.False(t, scheduled)

	scheduled, err = b.OnFailure(ctx, 8, 0, true)
	require.NoError(t, err)
	assert.False(t, scheduled)
	assert.Len(t, q.scheduled, 1)
}

type apiErr struct{ status int }

func (e apiErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e apiErr) Permanent() bool { return e.status >= 400 && e.status < 500 && e.status != 429 }

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("boom")))
	assert.False(t, IsPermanent(context.DeadlineExceeded))
	assert.True(t, IsPermanent(Permanent(errors.New("bad token"))))
	assert.True(t, IsPermanent(fmt.Errorf("reply: %w", Permanentf("persona missing"))))
	assert.True(t, IsPermanent(fmt.Errorf("delete: %w", apiErr{status: 400})))
	assert.False(t, IsPermanent(fmt.Errorf("delete: %w", apiErr{status: 429})))
	assert.Nil(t, Permanent(nil))

	inner := errors.New("root cause")
	assert.ErrorIs(t, Permanent(inner), inner)
}
