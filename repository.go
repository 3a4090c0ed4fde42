package main

import (
	"time"

	"github.com/jinzhu/gorm"
)

func getBotByID(id int) (*Bot, error) {
	var bot Bot
	err := orm.DB.First(&bot, "id = ?", id).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, notFoundErr("bot", id)
	}
	if err != nil {
		return nil, storeErr("select bot", err)
	}

	return &bot, nil
}

func getBotByToken(token string) (*Bot, error) {
	var bot Bot
	err := orm.DB.First(&bot, "token = ?", token).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("select bot", err)
	}

	return &bot, nil
}

func getBots() (Bots, error) {
	var bots Bots
	err := orm.DB.Order("created_at desc").Find(&bots).Error
	if err != nil {
		return nil, storeErr("select bots", err)
	}

	return bots, nil
}

func (b *Bot) createBot() error {
	if err := orm.DB.Create(b).Error; err != nil {
		return storeErr("insert bot", err)
	}
	notifyChange("bots", "insert", b.ID, b.ID)

	return nil
}

func (b *Bot) saveBot() error {
	if err := orm.DB.Save(b).Error; err != nil {
		return storeErr("update bot", err)
	}
	notifyChange("bots", "update", b.ID, b.ID)

	return nil
}

func (b *Bot) setStatus(status string) error {
	now := time.Now()
	b.Status = status
	b.LastActive = &now

	err := orm.DB.Model(b).Updates(map[string]interface{}{
		"status":      status,
		"last_active": now,
	}).Error
	if err != nil {
		return storeErr("update bot status", err)
	}
	notifyChange("bots", "update", b.ID, b.ID)

	return nil
}

// refreshBotStats recomputes the cached subscriber count and stamps
// last_active. Called after every reconciliation.
func (b *Bot) refreshBotStats() error {
	count, err := countActiveSubscribers(b.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	b.SubscribersCount = count
	b.LastActive = &now

	err = orm.DB.Model(b).Updates(map[string]interface{}{
		"subscribers_count": count,
		"last_active":       now,
		"last_update_id":    b.LastUpdateID,
	}).Error
	if err != nil {
		return storeErr("update bot stats", err)
	}
	notifyChange("bots", "update", b.ID, b.ID)

	return nil
}

// deleteBotCascade removes the bot and everything it owns. The cascade
// is explicit, not a storage-engine constraint.
func (b *Bot) deleteBotCascade() error {
	tx := orm.DB.Begin()
	if tx.Error != nil {
		return storeErr("begin", tx.Error)
	}

	for _, m := range []interface{}{&Subscriber{}, &Group{}, &Announcement{}, &MessageTemplate{}} {
		if err := tx.Where("bot_id = ?", b.ID).Delete(m).Error; err != nil {
			tx.Rollback()
			return storeErr("delete bot data", err)
		}
	}

	if err := tx.Delete(b).Error; err != nil {
		tx.Rollback()
		return storeErr("delete bot", err)
	}

	if err := tx.Commit().Error; err != nil {
		return storeErr("commit", err)
	}
	notifyChange("bots", "delete", b.ID, b.ID)

	return nil
}

func getSubscribers(botID int) ([]Subscriber, error) {
	var subs []Subscriber
	err := orm.DB.Where("bot_id = ?", botID).Order("joined_at desc").Find(&subs).Error
	if err != nil {
		return nil, storeErr("select subscribers", err)
	}

	return subs, nil
}

func getActiveSubscribers(botID int) ([]Subscriber, error) {
	var subs []Subscriber
	err := orm.DB.Where("bot_id = ? AND is_blocked = ?", botID, false).Find(&subs).Error
	if err != nil {
		return nil, storeErr("select subscribers", err)
	}

	return subs, nil
}

func countActiveSubscribers(botID int) (int, error) {
	var count int
	err := orm.DB.Model(&Subscriber{}).
		Where("bot_id = ? AND is_blocked = ?", botID, false).
		Count(&count).Error
	if err != nil {
		return 0, storeErr("count subscribers", err)
	}

	return count, nil
}

// upsertSubscriber merges one sighted identity into the roster by the
// (telegram_id, bot_id) compound key. joined_at is set once on insert
// and never touched again.
func upsertSubscriber(botID int, identity remoteUser) (created bool, err error) {
	now := time.Now()

	var existing Subscriber
	err = orm.DB.Where("telegram_id = ? AND bot_id = ?", identity.ID, botID).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		sub := Subscriber{
			TelegramID: identity.ID,
			Username:   identity.Username,
			FirstName:  identity.FirstName,
			LastName:   identity.LastName,
			IsBlocked:  false,
			JoinedAt:   now,
			LastActive: now,
			BotID:      botID,
		}
		if err = orm.DB.Create(&sub).Error; err != nil {
			return false, storeErr("insert subscriber", err)
		}
		notifyChange("subscribers", "insert", botID, sub.ID)

		return true, nil
	}
	if err != nil {
		return false, storeErr("select subscriber", err)
	}

	err = orm.DB.Model(&existing).Updates(map[string]interface{}{
		"username":    identity.Username,
		"first_name":  identity.FirstName,
		"last_name":   identity.LastName,
		"is_blocked":  false,
		"last_active": now,
	}).Error
	if err != nil {
		return false, storeErr("update subscriber", err)
	}
	notifyChange("subscribers", "update", botID, existing.ID)

	return false, nil
}

func getSubscriberByID(botID, id int) (*Subscriber, error) {
	var sub Subscriber
	err := orm.DB.First(&sub, "id = ? AND bot_id = ?", id, botID).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, notFoundErr("subscriber", id)
	}
	if err != nil {
		return nil, storeErr("select subscriber", err)
	}

	return &sub, nil
}

func (s *Subscriber) touchLastActive() error {
	now := time.Now()
	err := orm.DB.Model(s).Update("last_active", now).Error
	if err != nil {
		return storeErr("update subscriber", err)
	}
	s.LastActive = now
	notifyChange("subscribers", "update", s.BotID, s.ID)

	return nil
}

func (s *Subscriber) markBlocked() error {
	err := orm.DB.Model(s).Update("is_blocked", true).Error
	if err != nil {
		return storeErr("update subscriber", err)
	}
	s.IsBlocked = true
	notifyChange("subscribers", "update", s.BotID, s.ID)

	return nil
}

func getGroups(botID int) ([]Group, error) {
	var groups []Group
	err := orm.DB.Where("bot_id = ?", botID).Order("joined_at desc").Find(&groups).Error
	if err != nil {
		return nil, storeErr("select groups", err)
	}

	return groups, nil
}

// upsertGroup mirrors upsertSubscriber for multi-user chats.
func upsertGroup(botID int, chat remoteChat, memberCount int) (created bool, err error) {
	now := time.Now()

	var existing Group
	err = orm.DB.Where("telegram_id = ? AND bot_id = ?", chat.ID, botID).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		group := Group{
			TelegramID:  chat.ID,
			Title:       chat.Title,
			Type:        chat.Type,
			MemberCount: memberCount,
			JoinedAt:    now,
			LastActive:  now,
			BotID:       botID,
		}
		if err = orm.DB.Create(&group).Error; err != nil {
			return false, storeErr("insert group", err)
		}
		notifyChange("groups", "insert", botID, group.ID)

		return true, nil
	}
	if err != nil {
		return false, storeErr("select group", err)
	}

	err = orm.DB.Model(&existing).Updates(map[string]interface{}{
		"title":        chat.Title,
		"type":         chat.Type,
		"member_count": memberCount,
		"last_active":  now,
	}).Error
	if err != nil {
		return false, storeErr("update group", err)
	}
	notifyChange("groups", "update", botID, existing.ID)

	return false, nil
}

func getAnnouncements(botID int) ([]Announcement, error) {
	var list []Announcement
	err := orm.DB.Where("bot_id = ?", botID).Order("created_at desc").Find(&list).Error
	if err != nil {
		return nil, storeErr("select announcements", err)
	}

	return list, nil
}

func getAnnouncementByID(id int) (*Announcement, error) {
	var a Announcement
	err := orm.DB.First(&a, "id = ?", id).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, notFoundErr("announcement", id)
	}
	if err != nil {
		return nil, storeErr("select announcement", err)
	}

	return &a, nil
}

func (a *Announcement) createAnnouncement() error {
	if err := orm.DB.Create(a).Error; err != nil {
		return storeErr("insert announcement", err)
	}
	notifyChange("announcements", "insert", a.BotID, a.ID)

	return nil
}

// setProgress persists the running delivered count mid-dispatch so
// readers see progress before the fan-out finishes. The count is
// clamped to the snapshot total: in the scheduled path the live
// recipient list can be larger than the schedule-time snapshot.
func (a *Announcement) setProgress(delivered int) error {
	if delivered > a.TotalCount {
		delivered = a.TotalCount
	}
	a.DeliveredCount = delivered

	err := orm.DB.Model(a).Update("delivered_count", delivered).Error
	if err != nil {
		return storeErr("update announcement", err)
	}
	notifyChange("announcements", "update", a.BotID, a.ID)

	return nil
}

// finish moves the announcement to a terminal state and stamps sent_at.
func (a *Announcement) finish(status string, delivered int) error {
	if delivered > a.TotalCount {
		delivered = a.TotalCount
	}
	now := time.Now()
	a.Status = status
	a.DeliveredCount = delivered
	a.SentAt = &now

	err := orm.DB.Model(a).Updates(map[string]interface{}{
		"status":          status,
		"delivered_count": delivered,
		"sent_at":         now,
	}).Error
	if err != nil {
		return storeErr("update announcement", err)
	}
	notifyChange("announcements", "update", a.BotID, a.ID)

	return nil
}

// claimForSending flips a scheduled announcement to sending, but only
// when it is still scheduled. Two overlapping sweeps both select the
// same due row; the one whose update matched zero rows backs off, so a
// recipient never gets the announcement twice.
func (a *Announcement) claimForSending() (bool, error) {
	res := orm.DB.Model(&Announcement{}).
		Where("id = ? AND status = ?", a.ID, AnnouncementScheduled).
		Update("status", AnnouncementSending)
	if res.Error != nil {
		return false, storeErr("update announcement", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	a.Status = AnnouncementSending
	notifyChange("announcements", "update", a.BotID, a.ID)

	return true, nil
}

func (a *Announcement) setStatus(status string) error {
	a.Status = status
	err := orm.DB.Model(a).Update("status", status).Error
	if err != nil {
		return storeErr("update announcement", err)
	}
	notifyChange("announcements", "update", a.BotID, a.ID)

	return nil
}

// dueAnnouncements returns scheduled announcements whose time has come,
// oldest first.
func dueAnnouncements(now time.Time) ([]Announcement, error) {
	var due []Announcement
	err := orm.DB.
		Where("status = ? AND scheduled_time <= ?", AnnouncementScheduled, now).
		Order("scheduled_time asc").
		Find(&due).Error
	if err != nil {
		return nil, storeErr("select due announcements", err)
	}

	return due, nil
}

func getTemplates(botID int) ([]MessageTemplate, error) {
	var list []MessageTemplate
	err := orm.DB.Where("bot_id = ?", botID).Order("updated_at desc").Find(&list).Error
	if err != nil {
		return nil, storeErr("select templates", err)
	}

	return list, nil
}

func getTemplateByID(id int) (*MessageTemplate, error) {
	var t MessageTemplate
	err := orm.DB.First(&t, "id = ?", id).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, notFoundErr("template", id)
	}
	if err != nil {
		return nil, storeErr("select template", err)
	}

	return &t, nil
}

func (t *MessageTemplate) createTemplate() error {
	if err := orm.DB.Create(t).Error; err != nil {
		return storeErr("insert template", err)
	}
	notifyChange("message_templates", "insert", t.BotID, t.ID)

	return nil
}

func (t *MessageTemplate) saveTemplate() error {
	if err := orm.DB.Save(t).Error; err != nil {
		return storeErr("update template", err)
	}
	notifyChange("message_templates", "update", t.BotID, t.ID)

	return nil
}

func (t *MessageTemplate) deleteTemplate() error {
	if err := orm.DB.Delete(t).Error; err != nil {
		return storeErr("delete template", err)
	}
	notifyChange("message_templates", "delete", t.BotID, t.ID)

	return nil
}
