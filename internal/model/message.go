// Package model holds the domain types shared between the source transport,
// the filter and the forwarder.
package model

import "time"

// Message is a post read from the source channel. It is owned by the source
// transport; the relay only reads it.
type Message struct {
	ID       int
	Text     string
	Caption  string // text attached to media, when the transport separates it
	Entities []Entity
	ReplyTo  *Reply
	Date     time.Time
}

// Entity is an inline formatting entity. Text is the covered text, or the
// target URL for text links.
type Entity struct {
	Type string
	Text string
}

// Reply references the message a post replies to. Text is empty when the
// replied-to message was not available to the transport.
type Reply struct {
	ID   int
	Text string
}

// DisplayText returns the body, falling back to the caption.
func (m *Message) DisplayText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
