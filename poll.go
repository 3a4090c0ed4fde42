package main

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pollManager supervises one background polling worker per activated
// bot. Workers are started by the activation endpoint and stopped on
// deactivation or shutdown; their lifecycle is decoupled from the HTTP
// request that triggered them.
type pollManager struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	workers map[int]chan struct{}
}

func newPollManager() *pollManager {
	return &pollManager{workers: make(map[int]chan struct{})}
}

func (pm *pollManager) start(bot *Bot) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, running := pm.workers[bot.ID]; running {
		return
	}

	stop := make(chan struct{})
	pm.workers[bot.ID] = stop
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		pollBot(bot.ID, bot.Token, stop)
	}()

	logger.Infof("bot %d: poll worker started", bot.ID)
}

func (pm *pollManager) stop(botID int) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	stop, running := pm.workers[botID]
	if !running {
		return false
	}

	close(stop)
	delete(pm.workers, botID)
	logger.Infof("bot %d: poll worker stopped", botID)

	return true
}

func (pm *pollManager) running(botID int) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	_, running := pm.workers[botID]

	return running
}

func (pm *pollManager) stopAll() {
	pm.mu.Lock()
	for id, stop := range pm.workers {
		close(stop)
		delete(pm.workers, id)
	}
	pm.mu.Unlock()

	pm.wg.Wait()
}

// pollBot is the worker loop: every poll interval it reads updates past
// the persisted cursor, answers the basic commands and keeps the roster
// fresh. Errors are logged and the loop keeps going; the worker only
// exits through its stop channel.
func pollBot(botID int, token string, stop <-chan struct{}) {
	tg, err := newTelegramClient(token)
	if err != nil {
		logger.Errorf("bot %d: poll worker init: %v", botID, err)
		if bot, stErr := getBotByID(botID); stErr == nil {
			if err := bot.setStatus(BotStatusError); err != nil {
				logger.Errorf("bot %d: set error status: %v", botID, err)
			}
		}
		return
	}

	ticker := time.NewTicker(time.Duration(config.Telegram.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := pollOnce(tg, botID); err != nil {
				logger.Errorf("bot %d: poll: %v", botID, err)
			}
		}
	}
}

func pollOnce(tg *tgClient, botID int) error {
	bot, err := getBotByID(botID)
	if err != nil {
		return err
	}

	offset := 0
	if bot.LastUpdateID > 0 {
		offset = bot.LastUpdateID + 1
	}

	updates, err := tg.getUpdates(offset, config.Telegram.PollLimit)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	for _, update := range updates {
		if update.UpdateID > bot.LastUpdateID {
			bot.LastUpdateID = update.UpdateID
		}
		handleUpdate(tg, bot, update)
	}

	return bot.refreshBotStats()
}

// handleUpdate registers the sender and answers /start and /help in
// private chats.
func handleUpdate(tg *tgClient, bot *Bot, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return
	}
	if !msg.Chat.IsPrivate() {
		return
	}

	if _, err := upsertSubscriber(bot.ID, remoteUser{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}); err != nil {
		logger.Errorf("bot %d: register subscriber %d: %v", bot.ID, msg.From.ID, err)
	}

	if !msg.IsCommand() {
		return
	}

	var reply string
	switch msg.Command() {
	case "start":
		reply = fmt.Sprintf(
			"🎉 Hello, %s!\n\nYou are now subscribed to <b>%s</b> and will receive its announcements.",
			msg.From.FirstName, bot.Name,
		)
	case "help":
		reply = fmt.Sprintf(
			"📚 <b>%s</b>\n\nCommands:\n/start - subscribe to announcements\n/help - show this message",
			bot.Name,
		)
	default:
		return
	}

	if err := tg.sendMessage(msg.Chat.ID, reply); err != nil {
		logger.Warningf("bot %d: reply to %d: %v", bot.ID, msg.Chat.ID, err)
	}
}

var botCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Subscribe to announcements"},
	{Command: "help", Description: "Show help"},
}

// activateBot validates the token, clears any leftover webhook so
// polling works, registers the command menu, flips the bot online and
// starts its poll worker.
func activateBot(bot *Bot) error {
	tg, err := newTelegramClient(bot.Token)
	if err != nil {
		if stErr := bot.setStatus(BotStatusError); stErr != nil {
			logger.Errorf("bot %d: set error status: %v", bot.ID, stErr)
		}
		return err
	}

	if err := tg.deleteWebhook(true); err != nil {
		logger.Warningf("bot %d: delete webhook: %v", bot.ID, err)
	}
	if err := tg.setCommands(botCommands...); err != nil {
		logger.Warningf("bot %d: set commands: %v", bot.ID, err)
	}

	if err := bot.setStatus(BotStatusOnline); err != nil {
		return err
	}

	pollers.start(bot)

	return nil
}

// deactivateBot stops the worker and flips the bot offline.
func deactivateBot(bot *Bot) error {
	pollers.stop(bot.ID)

	return bot.setStatus(BotStatusOffline)
}
