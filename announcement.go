package main

import (
	"time"

	validator "gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// AnnouncementPayload is the draft form of an announcement. Drafts are
// never persisted; the first stored state is sending or scheduled.
type AnnouncementPayload struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	ImageURL    string `json:"image_url" validate:"omitempty"`
}

func (p *AnnouncementPayload) validatePayload() error {
	if err := validate.Struct(p); err != nil {
		if fields, ok := err.(validator.ValidationErrors); ok && len(fields) > 0 {
			return validationErr(fields[0].Field(), "is required")
		}
		return validationErr("payload", err.Error())
	}
	if p.ImageURL != "" && !isValidImageURL(p.ImageURL) {
		return validationErr("image_url", "malformed image URL")
	}

	return nil
}

// sendAnnouncement creates an announcement and broadcasts it right
// away. The eligible recipient set is snapshotted before the first
// send and fixed as total_count for the announcement's lifetime.
func sendAnnouncement(bot *Bot, payload AnnouncementPayload) (*Announcement, error) {
	if err := payload.validatePayload(); err != nil {
		return nil, err
	}

	recipients, err := getActiveSubscribers(bot.ID)
	if err != nil {
		return nil, err
	}

	a := &Announcement{
		BotID:       bot.ID,
		Title:       payload.Title,
		Description: payload.Description,
		ImageURL:    payload.ImageURL,
		Status:      AnnouncementSending,
		TotalCount:  len(recipients),
	}
	if err := a.createAnnouncement(); err != nil {
		return nil, err
	}

	// Nobody to send to is still a success.
	if len(recipients) == 0 {
		if err := a.finish(AnnouncementSent, 0); err != nil {
			return nil, err
		}
		return a, nil
	}

	if err := runDispatch(bot, a, recipients); err != nil {
		return nil, err
	}

	return a, nil
}

// scheduleAnnouncement stores an announcement for later pickup by the
// sweep. The recipient count snapshot is taken now, deliberately: the
// live list at send time may differ, but total_count will not move.
func scheduleAnnouncement(bot *Bot, payload AnnouncementPayload, when time.Time) (*Announcement, error) {
	if err := payload.validatePayload(); err != nil {
		return nil, err
	}
	if !when.After(time.Now()) {
		return nil, validationErr("scheduled_time", "must be in the future")
	}

	count, err := countActiveSubscribers(bot.ID)
	if err != nil {
		return nil, err
	}

	a := &Announcement{
		BotID:         bot.ID,
		Title:         payload.Title,
		Description:   payload.Description,
		ImageURL:      payload.ImageURL,
		Status:        AnnouncementScheduled,
		TotalCount:    count,
		ScheduledTime: &when,
	}
	if err := a.createAnnouncement(); err != nil {
		return nil, err
	}

	return a, nil
}

// BulkOutcome is the per-bot result of one bulk broadcast.
type BulkOutcome struct {
	BotID        int           `json:"botId"`
	Success      bool          `json:"success"`
	Announcement *Announcement `json:"announcement,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// bulkSendAnnouncement broadcasts one payload across several bots.
// Each bot gets its own announcement record and its own full fan-out;
// a failure for one bot never touches the others.
func bulkSendAnnouncement(botIDs []int, payload AnnouncementPayload) ([]BulkOutcome, error) {
	if len(botIDs) == 0 {
		return nil, validationErr("bot_ids", "is required")
	}
	if err := payload.validatePayload(); err != nil {
		return nil, err
	}

	outcomes := make([]BulkOutcome, 0, len(botIDs))
	for _, id := range botIDs {
		bot, err := getBotByID(id)
		if err != nil {
			logger.Errorf("bulk announcement: bot %d: %v", id, err)
			outcomes = append(outcomes, BulkOutcome{BotID: id, Error: err.Error()})
			continue
		}

		a, err := sendAnnouncement(bot, payload)
		if err != nil {
			logger.Errorf("bulk announcement: bot %d: %v", id, err)
			outcomes = append(outcomes, BulkOutcome{BotID: id, Error: err.Error()})
			continue
		}

		outcomes = append(outcomes, BulkOutcome{BotID: id, Success: true, Announcement: a})
	}

	return outcomes, nil
}

// runDispatch is the shared sending tail of the immediate and
// scheduled paths: fan out, then settle the terminal state. Zero
// deliveries against a non-empty recipient list means failed, not
// silently sent.
func runDispatch(bot *Bot, a *Announcement, recipients []Subscriber) error {
	tg, err := newTelegramClient(bot.Token)
	if err != nil {
		finishErr := a.finish(AnnouncementFailed, 0)
		if finishErr != nil {
			logger.Errorf("announcement %d: mark failed: %v", a.ID, finishErr)
		}
		return err
	}

	outcome := dispatchAnnouncement(tg, a, recipients)

	status := AnnouncementSent
	if outcome.Delivered == 0 && outcome.Total > 0 {
		status = AnnouncementFailed
	}

	return a.finish(status, outcome.Delivered)
}
