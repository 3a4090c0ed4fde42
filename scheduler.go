package main

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/op/go-logging"
)

// SweepOutcome is the per-announcement result of one sweep run.
type SweepOutcome struct {
	AnnouncementID int    `json:"id"`
	Success        bool   `json:"success"`
	Delivered      int    `json:"delivered,omitempty"`
	Total          int    `json:"total,omitempty"`
	Status         string `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// newScheduler wires the periodic jobs: the due-announcement sweep.
// The scheduler owns the timer only; the sweep itself is the same code
// the HTTP endpoint triggers.
func newScheduler() (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogger{log: logger}),
	)
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(time.Duration(config.SweepInterval)*time.Second),
		gocron.NewTask(func() {
			outcomes, err := sweepScheduled(time.Now())
			if err != nil {
				logger.Errorf("scheduled sweep: %v", err)
				return
			}
			if len(outcomes) > 0 {
				logger.Infof("scheduled sweep: processed %d announcements", len(outcomes))
			}
		}),
		gocron.WithName("announcement-sweep"),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// sweepScheduled finds due scheduled announcements and sends each one.
// Announcements are processed sequentially so batches from different
// announcements never share the rate limit. A failure inside one announcement marks it
// failed and the sweep moves on; only the due-list query itself can
// abort the sweep.
func sweepScheduled(now time.Time) ([]SweepOutcome, error) {
	due, err := dueAnnouncements(now)
	if err != nil {
		return nil, err
	}

	outcomes := make([]SweepOutcome, 0, len(due))
	for i := range due {
		outcomes = append(outcomes, sweepOne(&due[i]))
	}

	return outcomes, nil
}

func sweepOne(a *Announcement) SweepOutcome {
	fail := func(err error) SweepOutcome {
		logger.Errorf("announcement %d: %v", a.ID, err)
		if stErr := a.finish(AnnouncementFailed, a.DeliveredCount); stErr != nil {
			logger.Errorf("announcement %d: mark failed: %v", a.ID, stErr)
		}
		return SweepOutcome{AnnouncementID: a.ID, Success: false, Error: err.Error()}
	}

	claimed, err := a.claimForSending()
	if err != nil {
		return fail(err)
	}
	if !claimed {
		// Another sweep owns this announcement already.
		return SweepOutcome{AnnouncementID: a.ID, Success: true, Status: AnnouncementSending}
	}

	bot, err := getBotByID(a.BotID)
	if err != nil {
		return fail(fmt.Errorf("fetch bot: %v", err))
	}

	// The live list is evaluated now; total_count stays the snapshot
	// taken at schedule time.
	recipients, err := getActiveSubscribers(a.BotID)
	if err != nil {
		return fail(fmt.Errorf("fetch subscribers: %v", err))
	}

	if len(recipients) == 0 {
		if err := a.finish(AnnouncementSent, 0); err != nil {
			return fail(err)
		}
		return SweepOutcome{AnnouncementID: a.ID, Success: true, Status: AnnouncementSent}
	}

	if err := runDispatch(bot, a, recipients); err != nil {
		return SweepOutcome{AnnouncementID: a.ID, Success: false, Error: err.Error()}
	}

	return SweepOutcome{
		AnnouncementID: a.ID,
		Success:        true,
		Delivered:      a.DeliveredCount,
		Total:          a.TotalCount,
		Status:         a.Status,
	}
}

// gocronLogger adapts the app logger to gocron's logging interface.
type gocronLogger struct {
	log *logging.Logger
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debugf("gocron: %s %v", msg, args) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Infof("gocron: %s %v", msg, args) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warningf("gocron: %s %v", msg, args) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Errorf("gocron: %s %v", msg, args) }
