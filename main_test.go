package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2non/gock"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/require"
)

var router *gin.Engine

func init() {
	gin.SetMode(gin.TestMode)

	config = &AppConfig{
		LogLevel: logging.ERROR,
		Telegram: TelegramConfig{
			PollLimit: 100,
			// Long enough that poll workers never tick during a test.
			PollInterval:   3600,
			RequestTimeout: 10,
		},
		Broadcast: BroadcastConfig{
			BatchSize:  25,
			BatchDelay: 0,
		},
		SweepInterval: 60,
	}
	logger = newLogger()

	db, err := gorm.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		panic(err)
	}
	db.DB().SetMaxOpenConns(1)
	db.AutoMigrate(&Bot{}, &Subscriber{}, &Group{}, &Announcement{}, &MessageTemplate{})
	orm = &Orm{DB: db}

	router = setup()
}

func resetDB(t *testing.T) {
	t.Helper()

	for _, m := range []interface{}{
		&MessageTemplate{}, &Announcement{}, &Group{}, &Subscriber{}, &Bot{},
	} {
		require.NoError(t, orm.DB.Delete(m).Error)
	}
}

func createTestBot(t *testing.T, token string) *Bot {
	t.Helper()

	bot := &Bot{
		ClientID: GenerateToken(),
		Name:     "TestBot",
		Token:    token,
		Status:   BotStatusOffline,
	}
	require.NoError(t, bot.createBot())

	return bot
}

func seedSubscribers(t *testing.T, botID, n int) []Subscriber {
	t.Helper()

	subs := make([]Subscriber, 0, n)
	for i := 0; i < n; i++ {
		sub := Subscriber{
			TelegramID: int64(1000 + i),
			Username:   fmt.Sprintf("user%d", i),
			FirstName:  fmt.Sprintf("User%d", i),
			JoinedAt:   time.Now(),
			LastActive: time.Now(),
			BotID:      botID,
		}
		require.NoError(t, orm.DB.Create(&sub).Error)
		subs = append(subs, sub)
	}

	return subs
}

func stubGetMe(token string) {
	gock.New("https://api.telegram.org").
		Post("/bot" + token + "/getMe").
		Persist().
		Reply(200).
		BodyString(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"TestBot","username":"test_bot"}}`)
}
