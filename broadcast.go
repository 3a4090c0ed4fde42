package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// DeliveryOutcome is what one full fan-out produced.
type DeliveryOutcome struct {
	Delivered int `json:"delivered"`
	Total     int `json:"total"`
}

// announcementLocks serializes dispatches per announcement id so two
// racing triggers cannot interleave delivered_count writes.
var announcementLocks sync.Map

// batchSleep is swapped out in tests to observe the inter-batch delay.
var batchSleep = time.Sleep

func lockAnnouncement(id int) func() {
	v, _ := announcementLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// dispatchAnnouncement fans the announcement out to the recipient list
// in fixed-size batches. Sends inside a batch run concurrently and are
// awaited jointly; batches themselves run strictly one after another
// with a rate-limit delay in between. Per-recipient failures are
// tallied, never raised.
func dispatchAnnouncement(tg *tgClient, a *Announcement, recipients []Subscriber) DeliveryOutcome {
	if len(recipients) == 0 {
		return DeliveryOutcome{Delivered: 0, Total: 0}
	}

	unlock := lockAnnouncement(a.ID)
	defer unlock()

	var (
		delivered int32
		text      = buildBroadcastText(a.Title, a.Description)
		batches   = chunkSubscribers(recipients, config.Broadcast.BatchSize)
	)

	for i, batch := range batches {
		var wg sync.WaitGroup
		for j := range batch {
			sub := batch[j]
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := sendToRecipient(tg, a, sub.TelegramID, text); err != nil {
					logger.Warningf("announcement %d: send to %d failed: %v", a.ID, sub.TelegramID, err)
					if isBlockedRejection(err) {
						if blockErr := sub.markBlocked(); blockErr != nil {
							logger.Errorf("announcement %d: flag subscriber %d blocked: %v", a.ID, sub.ID, blockErr)
						}
					}
					return
				}

				atomic.AddInt32(&delivered, 1)
			}()
		}
		wg.Wait()

		if err := a.setProgress(int(atomic.LoadInt32(&delivered))); err != nil {
			logger.Errorf("announcement %d: persist progress: %v", a.ID, err)
		}

		if len(batches) > 1 && i < len(batches)-1 {
			batchSleep(config.batchDelay())
		}
	}

	return DeliveryOutcome{
		Delivered: int(atomic.LoadInt32(&delivered)),
		Total:     len(recipients),
	}
}

func sendToRecipient(tg *tgClient, a *Announcement, chatID int64, text string) error {
	if a.ImageURL != "" {
		return tg.sendPhoto(chatID, a.ImageURL, text)
	}

	return tg.sendMessage(chatID, text)
}

// sendDirectMessage delivers a one-off message to a single subscriber
// outside any announcement. Delivery stamps the subscriber's
// last_active; a blocked rejection flags them like a broadcast failure
// would.
func sendDirectMessage(bot *Bot, sub *Subscriber, payload AnnouncementPayload) error {
	if err := payload.validatePayload(); err != nil {
		return err
	}

	tg, err := newTelegramClient(bot.Token)
	if err != nil {
		return err
	}

	text := buildBroadcastText(payload.Title, payload.Description)
	if payload.ImageURL != "" {
		err = tg.sendPhoto(sub.TelegramID, payload.ImageURL, text)
	} else {
		err = tg.sendMessage(sub.TelegramID, text)
	}
	if err != nil {
		if isBlockedRejection(err) {
			if blockErr := sub.markBlocked(); blockErr != nil {
				logger.Errorf("bot %d: flag subscriber %d blocked: %v", bot.ID, sub.ID, blockErr)
			}
		}
		return err
	}

	return sub.touchLastActive()
}
