package main

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

var tokenCounter uint32

// GenerateToken makes an opaque public identifier for a bot record so
// console links never expose numeric database ids.
func GenerateToken() string {
	c := atomic.AddUint32(&tokenCounter, 1)

	return fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprintf("%d%d", time.Now().UnixNano(), c))))
}

// buildBroadcastText renders the announcement body sent to every
// recipient: bold title, blank line, description. Telegram's minimal
// HTML markup.
func buildBroadcastText(title, description string) string {
	return "<b>" + title + "</b>\n\n" + description
}

// chunkSubscribers partitions recipients into fixed-size batches. The
// last batch may be short.
func chunkSubscribers(subs []Subscriber, size int) [][]Subscriber {
	if size <= 0 || len(subs) == 0 {
		return nil
	}

	batches := make([][]Subscriber, 0, (len(subs)+size-1)/size)
	for i := 0; i < len(subs); i += size {
		end := i + size
		if end > len(subs) {
			end = len(subs)
		}
		batches = append(batches, subs[i:end])
	}

	return batches
}

// isBlockedRejection matches the platform's rejection of a recipient
// who blocked the bot, e.g. "Forbidden: bot was blocked by the user".
func isBlockedRejection(err error) bool {
	re, ok := err.(*RemoteError)
	if !ok {
		return false
	}

	return strings.Contains(strings.ToLower(re.Description), "blocked")
}

func isValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
