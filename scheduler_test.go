package main

import (
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sweepToken = "444444:SweepBot"

func scheduleForTest(t *testing.T, botID, total int, when time.Time) *Announcement {
	t.Helper()

	a := &Announcement{
		BotID:         botID,
		Title:         "Digest",
		Description:   "The weekly digest.",
		Status:        AnnouncementScheduled,
		TotalCount:    total,
		ScheduledTime: &when,
	}
	require.NoError(t, a.createAnnouncement())

	return a
}

func TestSweep_picksOnlyDue(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, sweepToken)
	due := scheduleForTest(t, bot.ID, 0, time.Now().Add(-time.Minute))
	future := scheduleForTest(t, bot.ID, 0, time.Now().Add(time.Hour))

	outcomes, err := sweepScheduled(time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, due.ID, outcomes[0].AnnouncementID)
	assert.True(t, outcomes[0].Success)

	// The empty-roster announcement settles as sent 0/0.
	sent, err := getAnnouncementByID(due.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementSent, sent.Status)

	untouched, err := getAnnouncementByID(future.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementScheduled, untouched.Status)
}

func TestSweep_staleSnapshot(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(sweepToken)

	config.Broadcast.BatchSize = 1
	defer func() { config.Broadcast.BatchSize = 25 }()

	gock.New("https://api.telegram.org").
		Post("/bot" + sweepToken + "/sendMessage").
		Times(3).
		Reply(200).
		BodyString(`{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":1000,"type":"private"}}}`)

	bot := createTestBot(t, sweepToken)
	seedSubscribers(t, bot.ID, 3)

	// Snapshot claims five recipients but only three remain live. The
	// snapshot stays; delivered can never pass it.
	a := scheduleForTest(t, bot.ID, 5, time.Now().Add(-time.Minute))

	outcomes, err := sweepScheduled(time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)

	sent, err := getAnnouncementByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementSent, sent.Status)
	assert.Equal(t, 3, sent.DeliveredCount)
	assert.Equal(t, 5, sent.TotalCount)
}

func TestSweep_claimIsExclusive(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, sweepToken)
	a := scheduleForTest(t, bot.ID, 1, time.Now().Add(-time.Minute))

	claimed, err := a.claimForSending()
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, AnnouncementSending, a.Status)

	claimed, err = a.claimForSending()
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestSweep_skipsAnnouncementClaimedElsewhere(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, sweepToken)
	seedSubscribers(t, bot.ID, 1)

	a := scheduleForTest(t, bot.ID, 1, time.Now().Add(-time.Minute))

	// Both sweeps selected the row; the first one claims it.
	stale := *a
	claimed, err := a.claimForSending()
	require.NoError(t, err)
	require.True(t, claimed)

	// The losing sweep backs off without touching the network: no
	// Telegram stubs exist, so any dispatch attempt would fail loudly.
	out := sweepOne(&stale)
	assert.True(t, out.Success)
	assert.Equal(t, AnnouncementSending, out.Status)
	assert.Equal(t, 0, out.Delivered)

	fresh, err := getAnnouncementByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementSending, fresh.Status)
	assert.Equal(t, 0, fresh.DeliveredCount)
}

func TestSweep_failureDoesNotStopTheRun(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, sweepToken)

	orphan := scheduleForTest(t, 99999, 1, time.Now().Add(-2*time.Minute))
	healthy := scheduleForTest(t, bot.ID, 0, time.Now().Add(-time.Minute))

	outcomes, err := sweepScheduled(time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.False(t, outcomes[0].Success)
	assert.Equal(t, orphan.ID, outcomes[0].AnnouncementID)
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, healthy.ID, outcomes[1].AnnouncementID)

	failed, err := getAnnouncementByID(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementFailed, failed.Status)

	sent, err := getAnnouncementByID(healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, AnnouncementSent, sent.Status)
}
