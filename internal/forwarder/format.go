package forwarder

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/edgard/channelrelay/internal/model"
)

// MediaPlaceholder replaces the text of posts that carry neither text nor
// caption.
const MediaPlaceholder = "[media message without text]"

const timestampLayout = "2006-01-02 15:04:05 UTC"

// FormatMessage renders msg as Bot API HTML: a header naming the source
// channel, the post time and ID, a link to the original post and the
// escaped text.
func FormatMessage(channel string, msg *model.Message) string {
	text := msg.DisplayText()
	if strings.TrimSpace(text) == "" {
		text = MediaPlaceholder
	}

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📢 <b>New post in @%s</b>\n", html.EscapeString(channel))
	fmt.Fprintf(&b, "🕒 %s\n", date.UTC().Format(timestampLayout))
	fmt.Fprintf(&b, "🆔 Message #%d\n", msg.ID)
	fmt.Fprintf(&b, "🔗 https://t.me/%s/%d\n\n", html.EscapeString(channel), msg.ID)
	b.WriteString(html.EscapeString(text))
	return b.String()
}
