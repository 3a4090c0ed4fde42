package main

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pollToken = "666666:PollBot"

func TestPollManager_lifecycle(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(pollToken)

	bot := createTestBot(t, pollToken)

	pollers.start(bot)
	assert.True(t, pollers.running(bot.ID))

	// Starting twice is a no-op.
	pollers.start(bot)
	assert.True(t, pollers.running(bot.ID))

	assert.True(t, pollers.stop(bot.ID))
	assert.False(t, pollers.running(bot.ID))
	assert.False(t, pollers.stop(bot.ID))
}

func TestPoll_handleUpdateStartCommand(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(pollToken)

	gock.New("https://api.telegram.org").
		Post("/bot" + pollToken + "/sendMessage").
		Reply(200).
		BodyString(`{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":100,"type":"private"}}}`)

	bot := createTestBot(t, pollToken)

	tg, err := newTelegramClient(pollToken)
	require.NoError(t, err)

	update := tgbotapi.Update{
		UpdateID: 7,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 100, FirstName: "Alice", UserName: "alice"},
			Chat:      &tgbotapi.Chat{ID: 100, Type: "private"},
			Text:      "/start",
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: 6},
			},
		},
	}

	handleUpdate(tg, bot, update)

	subs, err := getSubscribers(bot.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(100), subs[0].TelegramID)
	assert.True(t, gock.IsDone())
}

func TestPoll_handleUpdateIgnoresGroups(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(pollToken)

	bot := createTestBot(t, pollToken)

	tg, err := newTelegramClient(pollToken)
	require.NoError(t, err)

	update := tgbotapi.Update{
		UpdateID: 8,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 100, FirstName: "Alice"},
			Chat:      &tgbotapi.Chat{ID: -200, Type: "group", Title: "Crew"},
			Text:      "hello",
		},
	}

	handleUpdate(tg, bot, update)

	subs, err := getSubscribers(bot.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

type captureNotifier struct {
	events []ChangeEvent
}

func (n *captureNotifier) Notify(e ChangeEvent) { n.events = append(n.events, e) }

func TestNotify_changeFeed(t *testing.T) {
	resetDB(t)

	capture := &captureNotifier{}
	SetNotifier(capture)
	defer SetNotifier(nil)

	bot := createTestBot(t, pollToken)

	require.NotEmpty(t, capture.events)
	last := capture.events[len(capture.events)-1]
	assert.Equal(t, "bots", last.Table)
	assert.Equal(t, "insert", last.Action)
	assert.Equal(t, bot.ID, last.BotID)
}
