package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

func setup() *gin.Engine {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type"}
	r.Use(cors.New(corsConfig))

	if config.Debug {
		r.Use(gin.Logger())
	}

	errorHandlers := []ErrorHandlerFunc{
		PanicLogger(),
		ErrorLogger(),
		ErrorResponseHandler(),
	}
	if sentry, _ := raven.New(config.SentryDSN); sentry != nil && config.SentryDSN != "" {
		errorHandlers = append(errorHandlers, ErrorCaptureHandler(sentry))
	}
	r.Use(ErrorHandler(errorHandlers...))

	r.GET("/bots", listBotsHandler)
	r.POST("/bots", createBotHandler)
	r.PUT("/bots/:id", updateBotHandler)
	r.DELETE("/bots/:id", deleteBotHandler)
	r.POST("/bots/:id/activate", activateBotHandler)
	r.POST("/bots/:id/deactivate", deactivateBotHandler)
	r.POST("/bots/:id/sync", syncBotHandler)
	r.GET("/bots/:id/subscribers", listSubscribersHandler)
	r.POST("/bots/:id/subscribers", addSubscriberHandler)
	r.POST("/bots/:id/subscribers/:sid/message", messageSubscriberHandler)
	r.GET("/bots/:id/groups", listGroupsHandler)
	r.POST("/bots/:id/groups", addGroupHandler)
	r.GET("/bots/:id/announcements", listAnnouncementsHandler)
	r.POST("/bots/:id/announcements/send", sendAnnouncementHandler)
	r.POST("/bots/:id/announcements/schedule", scheduleAnnouncementHandler)
	r.POST("/announcements/bulk", bulkAnnouncementHandler)
	r.POST("/announcements/sweep", sweepHandler)
	r.GET("/bots/:id/templates", listTemplatesHandler)
	r.POST("/bots/:id/templates", createTemplateHandler)
	r.PUT("/templates/:id", updateTemplateHandler)
	r.DELETE("/templates/:id", deleteTemplateHandler)

	return r
}

// respondErr maps the error taxonomy onto HTTP statuses and writes the
// failure envelope. Descriptions pass through verbatim.
func respondErr(c *gin.Context, err error) {
	logger.Error(err)

	status := http.StatusInternalServerError
	switch {
	case isValidation(err):
		status = http.StatusBadRequest
	case isNotFound(err):
		status = http.StatusNotFound
	case isRemote(err):
		status = http.StatusBadGateway
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func respondOK(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Result: result})
}

// botFromPath resolves the :id route parameter. Responds itself on
// failure and returns nil.
func botFromPath(c *gin.Context) *Bot {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondErr(c, validationErr("id", "must be an integer"))
		return nil
	}

	bot, err := getBotByID(id)
	if err != nil {
		respondErr(c, err)
		return nil
	}

	return bot
}

func listBotsHandler(c *gin.Context) {
	bots, err := getBots()
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, bots)
}

type botPayload struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func createBotHandler(c *gin.Context) {
	var p botPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}
	if p.Token == "" {
		respondErr(c, validationErr("token", "is required"))
		return
	}

	existing, err := getBotByToken(p.Token)
	if err != nil {
		respondErr(c, err)
		return
	}
	if existing != nil {
		respondErr(c, validationErr("token", "bot already registered"))
		return
	}

	tg, err := newTelegramClient(p.Token)
	if err != nil {
		respondErr(c, err)
		return
	}

	name := p.Name
	if name == "" {
		name = tg.self().FirstName
	}

	bot := &Bot{
		ClientID: GenerateToken(),
		Name:     name,
		Token:    p.Token,
		Status:   BotStatusOffline,
		UserID:   accountID(c),
	}
	if err := bot.createBot(); err != nil {
		respondErr(c, err)
		return
	}

	// New bots go straight online, mirroring the console's create flow.
	if err := activateBot(bot); err != nil {
		logger.Warningf("bot %d: activation after create: %v", bot.ID, err)
	}

	c.JSON(http.StatusCreated, Response{Success: true, Result: bot})
}

func updateBotHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	var p botPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}

	if p.Token != "" && p.Token != bot.Token {
		tg, err := newTelegramClient(p.Token)
		if err != nil {
			respondErr(c, err)
			return
		}
		if err := tg.setCommands(botCommands...); err != nil {
			logger.Warningf("bot %d: set commands: %v", bot.ID, err)
		}
		bot.Token = p.Token
	}
	if p.Name != "" {
		bot.Name = p.Name
	}

	if err := bot.saveBot(); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, bot)
}

func deleteBotHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	pollers.stop(bot.ID)

	if err := bot.deleteBotCascade(); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, nil)
}

func activateBotHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	if err := activateBot(bot); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, bot)
}

func deactivateBotHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	if err := deactivateBot(bot); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, bot)
}

func syncBotHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	res, err := syncBot(bot)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, res)
}

func listSubscribersHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	subs, err := getSubscribers(bot.ID)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, subs)
}

type rosterPayload struct {
	TelegramID int64 `json:"telegram_id"`
}

func addSubscriberHandler(c *gin.Context) {
	addRosterEntry(c, "private")
}

func addGroupHandler(c *gin.Context) {
	addRosterEntry(c, "group")
}

func addRosterEntry(c *gin.Context, kind string) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	var p rosterPayload
	if err := c.ShouldBindJSON(&p); err != nil || p.TelegramID == 0 {
		respondErr(c, validationErr("telegram_id", "is required"))
		return
	}

	if err := registerChat(bot, p.TelegramID, kind); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, nil)
}

func messageSubscriberHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	sid, err := strconv.Atoi(c.Param("sid"))
	if err != nil {
		respondErr(c, validationErr("sid", "must be an integer"))
		return
	}

	sub, err := getSubscriberByID(bot.ID, sid)
	if err != nil {
		respondErr(c, err)
		return
	}

	var p AnnouncementPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}

	if err := sendDirectMessage(bot, sub, p); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, nil)
}

func listGroupsHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	groups, err := getGroups(bot.ID)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, groups)
}

func listAnnouncementsHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	list, err := getAnnouncements(bot.ID)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, list)
}

func sendAnnouncementHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	var p AnnouncementPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}

	a, err := sendAnnouncement(bot, p)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, a)
}

type schedulePayload struct {
	AnnouncementPayload
	ScheduledTime time.Time `json:"scheduled_time"`
}

func scheduleAnnouncementHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	var p schedulePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}
	if p.ScheduledTime.IsZero() {
		respondErr(c, validationErr("scheduled_time", "is required"))
		return
	}

	a, err := scheduleAnnouncement(bot, p.AnnouncementPayload, p.ScheduledTime)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, a)
}

type bulkPayload struct {
	AnnouncementPayload
	BotIDs []int `json:"bot_ids"`
}

func bulkAnnouncementHandler(c *gin.Context) {
	var p bulkPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}

	outcomes, err := bulkSendAnnouncement(p.BotIDs, p.AnnouncementPayload)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, outcomes)
}

func sweepHandler(c *gin.Context) {
	outcomes, err := sweepScheduled(time.Now())
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, gin.H{"processed": len(outcomes), "results": outcomes})
}

type templatePayload struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

func listTemplatesHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	list, err := getTemplates(bot.ID)
	if err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, list)
}

func createTemplateHandler(c *gin.Context) {
	bot := botFromPath(c)
	if bot == nil {
		return
	}

	var p templatePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}
	if p.Name == "" || p.Title == "" || p.Content == "" {
		respondErr(c, validationErr("template", "name, title and content are required"))
		return
	}

	t := &MessageTemplate{
		BotID:    bot.ID,
		Name:     p.Name,
		Title:    p.Title,
		Content:  p.Content,
		ImageURL: p.ImageURL,
	}
	if err := t.createTemplate(); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Result: t})
}

func updateTemplateHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondErr(c, validationErr("id", "must be an integer"))
		return
	}

	t, err := getTemplateByID(id)
	if err != nil {
		respondErr(c, err)
		return
	}

	var p templatePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondErr(c, validationErr("body", "malformed JSON"))
		return
	}

	if p.Name != "" {
		t.Name = p.Name
	}
	if p.Title != "" {
		t.Title = p.Title
	}
	if p.Content != "" {
		t.Content = p.Content
	}
	t.ImageURL = p.ImageURL

	if err := t.saveTemplate(); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, t)
}

func deleteTemplateHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondErr(c, validationErr("id", "must be an integer"))
		return
	}

	t, err := getTemplateByID(id)
	if err != nil {
		respondErr(c, err)
		return
	}

	if err := t.deleteTemplate(); err != nil {
		respondErr(c, err)
		return
	}

	respondOK(c, nil)
}

// accountID pulls the owning account from the auth layer. Session
// handling lives outside this service; the reverse proxy injects the
// account header.
func accountID(c *gin.Context) int {
	id, err := strconv.Atoi(c.GetHeader("X-Account-ID"))
	if err != nil {
		return 0
	}

	return id
}
