package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/notify"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(repository.NewMemoryStore(), DefaultPeriod, nil)
	svc.now = c.Now
	return svc, c
}

type recordingPublisher struct{ sent []health.Notification }

func (p *recordingPublisher) Publish(n health.Notification) int {
	p.sent = append(p.sent, n)
	return 1
}

func TestSetReplacesReminderForSameSymptom(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Set(ctx, "u-1", "headache", "drink plenty of water.")
	require.NoError(t, err)
	assert.Equal(t, "drink plenty of water", first.Advice)

	second, err := svc.Set(ctx, "u-1", "Headache", "rest your eyes")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rest your eyes", list[0].Advice)

	_, err = svc.Set(ctx, "u-1", " ", "x")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDueOncePerPeriod(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	_, err := svc.Set(ctx, "u-1", "headache", "drink plenty of water")
	require.NoError(t, err)

	due, err := svc.Due(ctx, c.Now().Add(23*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	c.Advance(25 * time.Hour)
	due, err = svc.Due(ctx, c.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, c.Now().UnixMilli(), due[0].LastShown)

	due, err = svc.Due(ctx, c.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueForUserOnlyClaimsOwnReminders(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Set(ctx, "u-1", "headache", "drink water")
	_, _ = svc.Set(ctx, "u-2", "cough", "warm tea")
	c.Advance(25 * time.Hour)

	due, err := svc.DueForUser(ctx, "u-1", c.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "u-1", due[0].UserID)

	rest, err := svc.Due(ctx, c.Now())
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "u-2", rest[0].UserID)
}

func TestDeleteChecksOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	r, _ := svc.Set(ctx, "u-1", "nausea", "sip water")

	assert.ErrorIs(t, svc.Delete(ctx, "u-2", r.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u-1", r.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "u-1", r.ID), ErrNotFound)
}

func TestCheckInFollowUps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CheckIn(ctx, "u-1", "", health.CheckInWorse)
	require.NoError(t, err)
	assert.Equal(t, "I'm sorry to hear you're feeling worse. It might be a good idea to consult a healthcare professional.", res.FollowUp)

	res, err = svc.CheckIn(ctx, "u-1", "", "Better")
	require.NoError(t, err)
	assert.Equal(t, "Great to hear you're feeling better! Keep up the good work.", res.FollowUp)

	_, err = svc.CheckIn(ctx, "u-1", "", "fine")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = svc.CheckIn(ctx, "u-1", "missing", health.CheckInSame)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationText(t *testing.T) {
	svc, _ := newTestService(t)
	n := svc.Notification(health.Reminder{ID: "r-1", UserID: "u-1", Symptom: "back pain", Advice: "stretch gently"})
	assert.Equal(t, "Daily Health Check-in: Back Pain", n.Title)
	assert.Equal(t, "Time for your daily check-in. Remember: stretch gently. How are you feeling today?", n.Body)
	assert.Equal(t, "healthwise-reminder", n.Tag)
	assert.Equal(t, []health.NotificationAction{
		{Action: "better", Title: "Feeling Better"},
		{Action: "same", Title: "Feeling the Same"},
		{Action: "worse", Title: "Feeling Worse"},
	}, n.Actions)
}

func TestSchedulerPublishesDueReminders(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Set(ctx, "u-1", "headache", "drink water")
	c.Advance(DefaultPeriod + time.Minute)

	pub := &recordingPublisher{}
	sched := NewScheduler(svc, pub, time.Hour, nil)

	n, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "u-1", pub.sent[0].UserID)

	n, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedulerRunStopsWithContext(t *testing.T) {
	svc, _ := newTestService(t)
	sched := NewScheduler(svc, &recordingPublisher{}, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestInboundHandler(t *testing.T) {
	svc, _ := newTestService(t)
	handler := svc.InboundHandler()

	reply, err := handler(context.Background(), "u-1", notify.Inbound{Type: "checkin", Response: "same"})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "Thanks for checking in. Consistency is key to feeling better.", reply.Body)
	assert.Equal(t, "HealthWise Follow-up", reply.Title)
	assert.Equal(t, "healthwise-follow-up", reply.Tag)

	reply, err = handler(context.Background(), "u-1", notify.Inbound{Type: "ping"})
	require.NoError(t, err)
	assert.Nil(t, reply)
}
