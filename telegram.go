package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// remoteUser is a sender identity extracted from the platform.
type remoteUser struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// remoteChat is a chat identity extracted from the platform.
type remoteChat struct {
	ID    int64
	Title string
	Type  string
}

// tgClient is the thin wrapper over the Telegram Bot API. One instance
// per bot token. It performs no retries; retry policy belongs to
// callers. Every call shares a bounded timeout so a hung request can
// never stall a broadcast batch indefinitely.
type tgClient struct {
	api *tgbotapi.BotAPI
}

// newTelegramClient builds a client for the given token. The library
// validates the token with getMe during construction, so an invalid
// token surfaces here as a RemoteError.
func newTelegramClient(token string) (*tgClient, error) {
	httpClient := &http.Client{Timeout: config.requestTimeout()}

	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, asRemoteError("getMe", err)
	}
	api.Debug = config.Debug

	return &tgClient{api: api}, nil
}

// call issues a single RPC round trip and returns the raw result
// payload. MakeRequest already turns an ok=false envelope into a
// *tgbotapi.Error, so err covers both transport and platform failures.
func (c *tgClient) call(method string, params tgbotapi.Params) (json.RawMessage, error) {
	resp, err := c.api.MakeRequest(method, params)
	if err != nil {
		return nil, asRemoteError(method, err)
	}

	return resp.Result, nil
}

func (c *tgClient) self() tgbotapi.User {
	return c.api.Self
}

func (c *tgClient) getUpdates(offset, limit int) ([]tgbotapi.Update, error) {
	u := tgbotapi.NewUpdate(offset)
	u.Limit = limit

	updates, err := c.api.GetUpdates(u)
	if err != nil {
		return nil, asRemoteError("getUpdates", err)
	}

	return updates, nil
}

func (c *tgClient) getChat(chatID int64) (*tgbotapi.Chat, error) {
	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, asRemoteError("getChat", err)
	}

	return &chat, nil
}

func (c *tgClient) getChatMemberCount(chatID int64) (int, error) {
	raw, err := c.call("getChatMemberCount", tgbotapi.Params{
		"chat_id": strconv.FormatInt(chatID, 10),
	})
	if err != nil {
		return 0, err
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, errors.Wrap(err, "decode getChatMemberCount result")
	}

	return count, nil
}

func (c *tgClient) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := c.api.Send(msg); err != nil {
		return asRemoteError("sendMessage", err)
	}

	return nil
}

func (c *tgClient) sendPhoto(chatID int64, photoURL, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := c.api.Send(msg); err != nil {
		return asRemoteError("sendPhoto", err)
	}

	return nil
}

func (c *tgClient) setCommands(commands ...tgbotapi.BotCommand) error {
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return asRemoteError("setMyCommands", err)
	}

	return nil
}

func (c *tgClient) deleteWebhook(dropPending bool) error {
	_, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending})
	if err != nil {
		return asRemoteError("deleteWebhook", err)
	}

	return nil
}

// asRemoteError normalizes library errors: platform rejections keep
// their description, transport failures keep the underlying message.
func asRemoteError(method string, err error) error {
	if err == nil {
		return nil
	}
	if tgErr, ok := err.(*tgbotapi.Error); ok {
		return &RemoteError{Method: method, Description: tgErr.Message}
	}

	return &RemoteError{Method: method, Description: err.Error()}
}
