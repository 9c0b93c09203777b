// Package queue owns the moderated request queue: admission policy,
// ordering, and the broadcast of full queue snapshots after every
// mutation. It is the single writer of queue state.
package queue

import "time"

// CommandPrefix is the chat keyword that marks a request, e.g.
// "点怪雌火龙". Content without it is ordinary chat and ignored.
const CommandPrefix = "点怪"

// Item is one admitted request. Field names match the overlay payload.
type Item struct {
	ID         string `json:"id"`
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	Face       string `json:"face"`
	GuardLevel int    `json:"guardLevel"`
	MedalLevel int    `json:"medalLevel"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

// Config is the queue's display and admission configuration. It is a
// process-wide singleton mutated only by the controlling surface and
// broadcast on every change.
type Config struct {
	MinGuardLevel   int    `json:"minGuardLevel"`
	MinMedalLevel   int    `json:"minMedalLevel"`
	AllowJump       bool   `json:"allowJump"`
	QueueTitle      string `json:"queueTitle"`
	TextColor       string `json:"textColor"`
	StrokeColor     string `json:"strokeColor"`
	BackgroundColor string `json:"backgroundColor"`
}

// DefaultConfig matches the defaults existing overlays were built
// against.
func DefaultConfig() Config {
	return Config{
		MinGuardLevel:   0,
		MinMedalLevel:   0,
		AllowJump:       false,
		QueueTitle:      "发送 点怪<怪物名> 点怪",
		TextColor:       "#000000",
		StrokeColor:     "#ffffff",
		BackgroundColor: "#00000024",
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }
