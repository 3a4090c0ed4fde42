package main

import "sync"

// ChangeEvent describes one committed write to a watched table. The UI
// layer subscribes to these to refresh its views; nothing in the engine
// depends on delivery.
type ChangeEvent struct {
	Table    string `json:"table"`
	Action   string `json:"action"`
	BotID    int    `json:"bot_id"`
	RecordID int    `json:"record_id,omitempty"`
}

// Notifier receives change events. Implementations must not block.
type Notifier interface {
	Notify(e ChangeEvent)
}

var (
	notifierMu sync.RWMutex
	notifier   Notifier
)

// SetNotifier installs the change-feed subscriber. Pass nil to detach.
func SetNotifier(n Notifier) {
	notifierMu.Lock()
	notifier = n
	notifierMu.Unlock()
}

func notifyChange(table, action string, botID, recordID int) {
	notifierMu.RLock()
	n := notifier
	notifierMu.RUnlock()

	if n != nil {
		n.Notify(ChangeEvent{Table: table, Action: action, BotID: botID, RecordID: recordID})
	}
}
