package domain

import "time"

// WatermarkKind selects which watermark token is prepended to an outgoing message
type WatermarkKind string

const (
	WatermarkAuto   WatermarkKind = "auto"
	WatermarkManual WatermarkKind = "manual"
	WatermarkNone   WatermarkKind = "none"
)

// ChatSnapshot is one conversation as seen in a single poll of the chat list.
// Node is the opaque token FunPay uses to address replies.
type ChatSnapshot struct {
	UserName string
	Message  string
	Time     string
	Node     string
	IsUnread bool
}

// Sender identifies who produced a transcript entry
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatMessage is one entry of a per-user transcript
type ChatMessage struct {
	Sender    Sender
	Text      string
	Timestamp time.Time
}
