package main

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SyncResult summarizes one reconciliation sweep.
type SyncResult struct {
	NewUsers      int      `json:"newUsers"`
	UpdatedUsers  int      `json:"updatedUsers"`
	NewGroups     int      `json:"newGroups"`
	UpdatedGroups int      `json:"updatedGroups"`
	Errors        []string `json:"errors,omitempty"`
}

// syncBot reconciles the bot's remote roster into the local store.
// Only a failure of the initial update fetch aborts the sweep;
// everything past that point is best effort per record.
func syncBot(bot *Bot) (*SyncResult, error) {
	tg, err := newTelegramClient(bot.Token)
	if err != nil {
		return nil, err
	}

	updates, err := fetchUpdates(tg, bot)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	users, chats, maxUpdateID := extractIdentities(updates)

	for _, u := range users {
		created, err := upsertSubscriber(bot.ID, u)
		if err != nil {
			logger.Errorf("sync bot %d: subscriber %d: %v", bot.ID, u.ID, err)
			res.Errors = append(res.Errors, fmt.Sprintf("subscriber %d: %v", u.ID, err))
			continue
		}
		if created {
			res.NewUsers++
		} else {
			res.UpdatedUsers++
		}
	}

	for _, chat := range chats {
		// Best effort: a chat we cannot count still joins the roster.
		memberCount, err := tg.getChatMemberCount(chat.ID)
		if err != nil {
			logger.Warningf("sync bot %d: member count for group %d: %v", bot.ID, chat.ID, err)
			memberCount = 0
		}

		created, err := upsertGroup(bot.ID, chat, memberCount)
		if err != nil {
			logger.Errorf("sync bot %d: group %d: %v", bot.ID, chat.ID, err)
			res.Errors = append(res.Errors, fmt.Sprintf("group %d: %v", chat.ID, err))
			continue
		}
		if created {
			res.NewGroups++
		} else {
			res.UpdatedGroups++
		}
	}

	if maxUpdateID > bot.LastUpdateID {
		bot.LastUpdateID = maxUpdateID
	}
	if err := bot.refreshBotStats(); err != nil {
		logger.Errorf("sync bot %d: refresh stats: %v", bot.ID, err)
		res.Errors = append(res.Errors, fmt.Sprintf("bot stats: %v", err))
	}

	return res, nil
}

// fetchUpdates reads the update feed past the persisted cursor. When a
// leftover webhook blocks polling, the webhook is dropped and the fetch
// retried once.
func fetchUpdates(tg *tgClient, bot *Bot) ([]tgbotapi.Update, error) {
	offset := 0
	if bot.LastUpdateID > 0 {
		offset = bot.LastUpdateID + 1
	}

	updates, err := tg.getUpdates(offset, config.Telegram.PollLimit)
	if err == nil {
		return updates, nil
	}

	logger.Warningf("sync bot %d: getUpdates failed (%v), dropping webhook", bot.ID, err)
	if delErr := tg.deleteWebhook(true); delErr != nil {
		return nil, delErr
	}

	return tg.getUpdates(offset, config.Telegram.PollLimit)
}

// extractIdentities walks the update batch once and pulls out distinct
// subscriber and group identities. First occurrence wins inside the
// batch. Users only count as subscribers when seen in a private chat.
func extractIdentities(updates []tgbotapi.Update) ([]remoteUser, []remoteChat, int) {
	var (
		users     []remoteUser
		chats     []remoteChat
		seenUsers = make(map[int64]bool)
		seenChats = make(map[int64]bool)
		maxID     int
	)

	for _, update := range updates {
		if update.UpdateID > maxID {
			maxID = update.UpdateID
		}

		// A membership update for a block or leave must not count as a
		// sighting: upserting it would clear the is_blocked flag for
		// the very user who just blocked the bot.
		if mc := update.MyChatMember; mc != nil {
			if s := mc.NewChatMember.Status; s == "kicked" || s == "left" {
				continue
			}
		}

		from, chat := originOf(update)

		if from != nil && !from.IsBot && chat != nil && chat.IsPrivate() && !seenUsers[from.ID] {
			seenUsers[from.ID] = true
			users = append(users, remoteUser{
				ID:        from.ID,
				Username:  from.UserName,
				FirstName: from.FirstName,
				LastName:  from.LastName,
			})
		}

		if chat != nil && (chat.IsGroup() || chat.IsSuperGroup()) && !seenChats[chat.ID] {
			seenChats[chat.ID] = true
			chats = append(chats, remoteChat{
				ID:    chat.ID,
				Title: chat.Title,
				Type:  chat.Type,
			})
		}
	}

	return users, chats, maxID
}

// originOf finds the sender and chat of an update regardless of which
// event kind carried them.
func originOf(update tgbotapi.Update) (*tgbotapi.User, *tgbotapi.Chat) {
	switch {
	case update.Message != nil:
		return update.Message.From, update.Message.Chat
	case update.EditedMessage != nil:
		return update.EditedMessage.From, update.EditedMessage.Chat
	case update.CallbackQuery != nil:
		var chat *tgbotapi.Chat
		if update.CallbackQuery.Message != nil {
			chat = update.CallbackQuery.Message.Chat
		}
		return update.CallbackQuery.From, chat
	case update.MyChatMember != nil:
		return &update.MyChatMember.From, &update.MyChatMember.Chat
	}

	return nil, nil
}

// registerChat merges a single chat looked up by id into the roster,
// used by the manual add-subscriber and add-group paths. kind is
// "private" or "group" and guards against registering the wrong thing.
func registerChat(bot *Bot, chatID int64, kind string) error {
	tg, err := newTelegramClient(bot.Token)
	if err != nil {
		return err
	}

	chat, err := tg.getChat(chatID)
	if err != nil {
		return err
	}

	switch {
	case chat.IsPrivate():
		if kind != "private" {
			return validationErr("telegram_id", "not a group or supergroup")
		}
		_, err = upsertSubscriber(bot.ID, remoteUser{
			ID:        chat.ID,
			Username:  chat.UserName,
			FirstName: chat.FirstName,
			LastName:  chat.LastName,
		})
		if err != nil {
			return err
		}
		return bot.refreshBotStats()
	case chat.IsGroup() || chat.IsSuperGroup():
		if kind != "group" {
			return validationErr("telegram_id", "not a private chat")
		}
		memberCount, countErr := tg.getChatMemberCount(chat.ID)
		if countErr != nil {
			logger.Warningf("bot %d: member count for group %d: %v", bot.ID, chat.ID, countErr)
		}
		_, err = upsertGroup(bot.ID, remoteChat{ID: chat.ID, Title: chat.Title, Type: chat.Type}, memberCount)
		return err
	}

	return validationErr("chat_id", "not a private chat or group")
}
