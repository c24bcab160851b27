package mtproto

import (
	"time"
	"unicode/utf16"

	"github.com/gotd/td/tg"

	"github.com/edgard/channelrelay/internal/model"
)

// convertMessages maps a history page to domain messages, skipping service
// and empty messages. Reply texts are filled from the same page.
func convertMessages(raw []tg.MessageClass) []model.Message {
	out := make([]model.Message, 0, len(raw))
	texts := make(map[int]string, len(raw))

	for _, mc := range raw {
		m, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, convertMessage(m))
		texts[m.ID] = m.Message
	}

	for i := range out {
		if r := out[i].ReplyTo; r != nil && r.Text == "" {
			r.Text = texts[r.ID]
		}
	}
	return out
}

func convertMessage(m *tg.Message) model.Message {
	msg := model.Message{
		ID:   m.ID,
		Date: time.Unix(int64(m.Date), 0).UTC(),
	}

	// Telegram carries media captions in the message text.
	switch m.Media.(type) {
	case *tg.MessageMediaPhoto, *tg.MessageMediaDocument:
		msg.Caption = m.Message
	default:
		msg.Text = m.Message
	}

	for _, e := range m.Entities {
		if text := entityText(m.Message, e); text != "" {
			msg.Entities = append(msg.Entities, model.Entity{Type: e.TypeName(), Text: text})
		}
	}

	if h, ok := m.ReplyTo.(*tg.MessageReplyHeader); ok && h.ReplyToMsgID != 0 {
		msg.ReplyTo = &model.Reply{ID: h.ReplyToMsgID, Text: h.QuoteText}
	}
	return msg
}

// entityText returns the URL of a text link, or the text an entity covers.
// Entity offsets count UTF-16 code units.
func entityText(text string, e tg.MessageEntityClass) string {
	if link, ok := e.(*tg.MessageEntityTextURL); ok {
		return link.URL
	}

	units := utf16.Encode([]rune(text))
	start := e.GetOffset()
	end := start + e.GetLength()
	if start < 0 || start >= end || end > len(units) {
		return ""
	}
	return string(utf16.Decode(units[start:end]))
}
