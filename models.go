package main

import "time"

// Bot statuses
const (
	BotStatusOnline  = "online"
	BotStatusOffline = "offline"
	BotStatusError   = "error"
)

// Announcement statuses
const (
	AnnouncementScheduled = "scheduled"
	AnnouncementSending   = "sending"
	AnnouncementSent      = "sent"
	AnnouncementFailed    = "failed"
)

// Bot model
type Bot struct {
	ID               int    `gorm:"primary_key" json:"id"`
	ClientID         string `gorm:"column:client_id" json:"clientId"`
	Name             string `json:"name"`
	Token            string `json:"token,omitempty"`
	Status           string `json:"status"`
	SubscribersCount int    `gorm:"column:subscribers_count" json:"subscribersCount"`
	// LastUpdateID is the polling cursor: the highest update id already
	// reconciled for this bot.
	LastUpdateID int        `gorm:"column:last_update_id" json:"-"`
	LastActive   *time.Time `gorm:"column:last_active" json:"lastActive,omitempty"`
	UserID       int        `gorm:"column:user_id" json:"userId"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"-"`
}

// Subscriber model. (TelegramID, BotID) is unique.
type Subscriber struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TelegramID int64     `gorm:"column:telegram_id" json:"telegramId"`
	Username   string    `json:"username"`
	FirstName  string    `gorm:"column:first_name" json:"firstName"`
	LastName   string    `gorm:"column:last_name" json:"lastName"`
	IsBlocked  bool      `gorm:"column:is_blocked" json:"isBlocked"`
	JoinedAt   time.Time `gorm:"column:joined_at" json:"joinedAt"`
	LastActive time.Time `gorm:"column:last_active" json:"lastActive"`
	BotID      int       `gorm:"column:bot_id" json:"botId"`
}

// Group model. (TelegramID, BotID) is unique.
type Group struct {
	ID          int       `gorm:"primary_key" json:"id"`
	TelegramID  int64     `gorm:"column:telegram_id" json:"telegramId"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	MemberCount int       `gorm:"column:member_count" json:"memberCount"`
	JoinedAt    time.Time `gorm:"column:joined_at" json:"joinedAt"`
	LastActive  time.Time `gorm:"column:last_active" json:"lastActive"`
	BotID       int       `gorm:"column:bot_id" json:"botId"`
}

// Announcement model. TotalCount is a snapshot of eligible recipients
// taken when the announcement is created; it is never recomputed, and
// DeliveredCount never exceeds it.
type Announcement struct {
	ID             int        `gorm:"primary_key" json:"id"`
	BotID          int        `gorm:"column:bot_id" json:"botId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	ImageURL       string     `gorm:"column:image_url" json:"imageUrl,omitempty"`
	Status         string     `json:"status"`
	DeliveredCount int        `gorm:"column:delivered_count" json:"deliveredCount"`
	TotalCount     int        `gorm:"column:total_count" json:"totalCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `gorm:"column:sent_at" json:"sentAt,omitempty"`
	ScheduledTime  *time.Time `gorm:"column:scheduled_time" json:"scheduledTime,omitempty"`
}

// MessageTemplate model
type MessageTemplate struct {
	ID        int       `gorm:"primary_key" json:"id"`
	BotID     int       `gorm:"column:bot_id" json:"botId"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `gorm:"column:image_url" json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bots list
type Bots []Bot
