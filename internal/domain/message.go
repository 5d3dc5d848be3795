package domain

import "time"

// ChatEvent is a single inbound message from a chat platform.
// Channels produce these; the resolver consumes each one exactly once.
type ChatEvent struct {
	Platform      string // "twitch" | "telegram" | "cli"
	OriginChannel string // room/chat the message arrived in
	Author        string
	RawContent    string
	IsCommand     bool // starts with the command prefix (e.g. "!ai")
	Timestamp     time.Time
}

// PendingRequest is a resolved prompt waiting for dispatch. It is owned by
// the ingestion queue until dequeued and is never re-enqueued: every
// request gets at most one backend attempt.
type PendingRequest struct {
	ID            string // uuid, used to match batch results back to their request
	Prompt        string
	Author        string
	OriginChannel string
	Platform      string
}

// Batch is one unit of dispatch work. Requests inside a batch are sent to
// the backend concurrently; FIFO order is only meaningful across batches.
type Batch []PendingRequest

// OutboundMessage is text on its way back to a chat platform.
type OutboundMessage struct {
	Platform      string
	OriginChannel string
	Content       string
}
