package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routingToken = "555555:WebBot"

func doRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) (bool, json.RawMessage) {
	t.Helper()

	var resp struct {
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Result  json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	return resp.Success, resp.Result
}

func stubBotSetup(token string) {
	stubGetMe(token)

	gock.New("https://api.telegram.org").
		Post("/bot" + token + "/deleteWebhook").
		Persist().
		Reply(200).
		BodyString(`{"ok":true,"result":true}`)

	gock.New("https://api.telegram.org").
		Post("/bot" + token + "/setMyCommands").
		Persist().
		Reply(200).
		BodyString(`{"ok":true,"result":true}`)
}

func TestRouting_listBotsHandler(t *testing.T) {
	resetDB(t)
	createTestBot(t, routingToken)

	rr := doRequest(t, "GET", "/bots", "")
	require.Equal(t, http.StatusOK, rr.Code)

	ok, result := decodeResponse(t, rr)
	assert.True(t, ok)

	var bots []Bot
	require.NoError(t, json.Unmarshal(result, &bots))
	assert.Len(t, bots, 1)
}

func TestRouting_createBotHandler(t *testing.T) {
	defer gock.Off()
	defer pollers.stopAll()
	resetDB(t)
	stubBotSetup(routingToken)

	rr := doRequest(t, "POST", "/bots", fmt.Sprintf(`{"token": "%s"}`, routingToken))
	require.Equal(t, http.StatusCreated, rr.Code)

	ok, result := decodeResponse(t, rr)
	assert.True(t, ok)

	var bot Bot
	require.NoError(t, json.Unmarshal(result, &bot))
	assert.Equal(t, "TestBot", bot.Name)
	assert.NotEmpty(t, bot.ClientID)
	assert.Equal(t, BotStatusOnline, bot.Status)
}

func TestRouting_createBotHandlerDuplicate(t *testing.T) {
	resetDB(t)
	createTestBot(t, routingToken)

	rr := doRequest(t, "POST", "/bots", fmt.Sprintf(`{"token": "%s"}`, routingToken))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouting_createBotHandlerBadToken(t *testing.T) {
	defer gock.Off()
	resetDB(t)

	gock.New("https://api.telegram.org").
		Post("/botbad:token/getMe").
		Reply(401).
		BodyString(`{"ok":false,"error_code":401,"description":"Unauthorized"}`)

	rr := doRequest(t, "POST", "/bots", `{"token": "bad:token"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRouting_activateDeactivateHandlers(t *testing.T) {
	defer gock.Off()
	defer pollers.stopAll()
	resetDB(t)
	stubBotSetup(routingToken)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST", fmt.Sprintf("/bots/%d/activate", bot.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, pollers.running(bot.ID))

	fresh, err := getBotByID(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, BotStatusOnline, fresh.Status)

	rr = doRequest(t, "POST", fmt.Sprintf("/bots/%d/deactivate", bot.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, pollers.running(bot.ID))

	fresh, err = getBotByID(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, BotStatusOffline, fresh.Status)
}

func TestRouting_syncBotHandler(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(routingToken)

	gock.New("https://api.telegram.org").
		Post("/bot" + routingToken + "/getUpdates").
		Reply(200).
		BodyString(`{"ok":true,"result":[]}`)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST", fmt.Sprintf("/bots/%d/sync", bot.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	ok, result := decodeResponse(t, rr)
	assert.True(t, ok)

	var res SyncResult
	require.NoError(t, json.Unmarshal(result, &res))
	assert.Equal(t, 0, res.NewUsers)
}

func TestRouting_syncBotHandlerUnknownBot(t *testing.T) {
	resetDB(t)

	rr := doRequest(t, "POST", "/bots/99999/sync", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouting_addSubscriberHandler(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(routingToken)

	gock.New("https://api.telegram.org").
		Post("/bot" + routingToken + "/getChat").
		Reply(200).
		BodyString(`{"ok":true,"result":{"id":500,"type":"private","first_name":"Manual","username":"manual"}}`)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST", fmt.Sprintf("/bots/%d/subscribers", bot.ID), `{"telegram_id": 500}`)
	require.Equal(t, http.StatusOK, rr.Code)

	subs, err := getSubscribers(bot.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(500), subs[0].TelegramID)
	assert.Equal(t, "manual", subs[0].Username)
}

func TestRouting_messageSubscriberHandler(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(routingToken)

	gock.New("https://api.telegram.org").
		Post("/bot" + routingToken + "/sendMessage").
		Reply(200).
		BodyString(`{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":1000,"type":"private"}}}`)

	bot := createTestBot(t, routingToken)
	subs := seedSubscribers(t, bot.ID, 1)

	rr := doRequest(t, "POST",
		fmt.Sprintf("/bots/%d/subscribers/%d/message", bot.ID, subs[0].ID),
		`{"title": "Ping", "description": "Just for you."}`,
	)
	require.Equal(t, http.StatusOK, rr.Code)

	ok, _ := decodeResponse(t, rr)
	assert.True(t, ok)
	assert.True(t, gock.IsDone())
}

func TestRouting_messageSubscriberHandlerUnknownSubscriber(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST",
		fmt.Sprintf("/bots/%d/subscribers/99999/message", bot.ID),
		`{"title": "Ping", "description": "Nobody home."}`,
	)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouting_bulkAnnouncementHandler(t *testing.T) {
	resetDB(t)

	// Empty rosters settle as sent 0/0 without touching the network.
	first := createTestBot(t, routingToken)
	second := createTestBot(t, "777777:OtherBot")

	rr := doRequest(t, "POST", "/announcements/bulk",
		fmt.Sprintf(`{"bot_ids": [%d, %d, 99999], "title": "Everywhere", "description": "All bots."}`,
			first.ID, second.ID),
	)
	require.Equal(t, http.StatusOK, rr.Code)

	ok, result := decodeResponse(t, rr)
	assert.True(t, ok)

	var outcomes []BulkOutcome
	require.NoError(t, json.Unmarshal(result, &outcomes))
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Success)
	require.NotNil(t, outcomes[0].Announcement)
	assert.Equal(t, AnnouncementSent, outcomes[0].Announcement.Status)
	assert.True(t, outcomes[1].Success)

	// One bad bot id never blocks the rest.
	assert.False(t, outcomes[2].Success)
	assert.NotEmpty(t, outcomes[2].Error)

	firstList, err := getAnnouncements(first.ID)
	require.NoError(t, err)
	assert.Len(t, firstList, 1)

	secondList, err := getAnnouncements(second.ID)
	require.NoError(t, err)
	assert.Len(t, secondList, 1)
}

func TestRouting_bulkAnnouncementHandlerValidation(t *testing.T) {
	resetDB(t)

	rr := doRequest(t, "POST", "/announcements/bulk", `{"title": "No bots", "description": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, "POST", "/announcements/bulk", `{"bot_ids": [1], "description": "no title"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouting_addGroupHandlerRejectsPrivateChat(t *testing.T) {
	defer gock.Off()
	resetDB(t)
	stubGetMe(routingToken)

	gock.New("https://api.telegram.org").
		Post("/bot" + routingToken + "/getChat").
		Reply(200).
		BodyString(`{"ok":true,"result":{"id":500,"type":"private","first_name":"Manual"}}`)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST", fmt.Sprintf("/bots/%d/groups", bot.ID), `{"telegram_id": 500}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouting_sendAnnouncementHandlerValidation(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST",
		fmt.Sprintf("/bots/%d/announcements/send", bot.ID),
		`{"description": "no title"}`,
	)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	ok, _ := decodeResponse(t, rr)
	assert.False(t, ok)
}

func TestRouting_scheduleAndSweepHandlers(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, routingToken)
	seedSubscribers(t, bot.ID, 2)

	when := time.Now().Add(time.Hour).Format(time.RFC3339)
	rr := doRequest(t, "POST",
		fmt.Sprintf("/bots/%d/announcements/schedule", bot.ID),
		fmt.Sprintf(`{"title": "Digest", "description": "Soon.", "scheduled_time": "%s"}`, when),
	)
	require.Equal(t, http.StatusOK, rr.Code)

	ok, result := decodeResponse(t, rr)
	assert.True(t, ok)

	var a Announcement
	require.NoError(t, json.Unmarshal(result, &a))
	assert.Equal(t, AnnouncementScheduled, a.Status)
	assert.Equal(t, 2, a.TotalCount)

	// Not due yet, so the sweep finds nothing.
	rr = doRequest(t, "POST", "/announcements/sweep", "")
	require.Equal(t, http.StatusOK, rr.Code)

	_, result = decodeResponse(t, rr)
	var sweep struct {
		Processed int `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(result, &sweep))
	assert.Equal(t, 0, sweep.Processed)
}

func TestRouting_templateHandlers(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, routingToken)

	rr := doRequest(t, "POST",
		fmt.Sprintf("/bots/%d/templates", bot.ID),
		`{"name": "welcome", "title": "Welcome!", "content": "Glad you joined."}`,
	)
	require.Equal(t, http.StatusCreated, rr.Code)

	_, result := decodeResponse(t, rr)
	var tpl MessageTemplate
	require.NoError(t, json.Unmarshal(result, &tpl))

	rr = doRequest(t, "GET", fmt.Sprintf("/bots/%d/templates", bot.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	_, result = decodeResponse(t, rr)
	var list []MessageTemplate
	require.NoError(t, json.Unmarshal(result, &list))
	assert.Len(t, list, 1)

	rr = doRequest(t, "PUT",
		fmt.Sprintf("/templates/%d", tpl.ID),
		`{"title": "Welcome aboard!"}`,
	)
	require.Equal(t, http.StatusOK, rr.Code)

	updated, err := getTemplateByID(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard!", updated.Title)
	assert.Equal(t, "welcome", updated.Name)

	rr = doRequest(t, "DELETE", fmt.Sprintf("/templates/%d", tpl.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = getTemplateByID(tpl.ID)
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestRouting_deleteBotHandlerCascades(t *testing.T) {
	resetDB(t)

	bot := createTestBot(t, routingToken)
	seedSubscribers(t, bot.ID, 2)

	rr := doRequest(t, "DELETE", fmt.Sprintf("/bots/%d", bot.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := getBotByID(bot.ID)
	assert.True(t, isNotFound(err))

	var count int
	require.NoError(t, orm.DB.Model(&Subscriber{}).Where("bot_id = ?", bot.ID).Count(&count).Error)
	assert.Equal(t, 0, count)
}

func TestRouting_corsPreflight(t *testing.T) {
	req, err := http.NewRequest("OPTIONS", "/bots", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
