// Package filter decides whether a source post matches the configured keywords.
package filter

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/edgard/channelrelay/internal/model"
)

// wordEdge treats anything that is not a letter, digit or underscore as a
// word boundary, so keywords that start or end with punctuation (c++, .net)
// still match as whole words.
const wordEdge = `[^\p{L}\p{N}_]`

type keyword struct {
	word    string
	pattern *regexp.Regexp
}

// Filter matches messages against a hot-swappable keyword set.
type Filter struct {
	mu       sync.RWMutex
	keywords []keyword
	logger   *slog.Logger
}

// New creates a filter for the given keywords.
func New(keywords []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f := &Filter{logger: logger.With("component", "keyword_filter")}
	f.UpdateKeywords(keywords)
	return f
}

// UpdateKeywords replaces the keyword set. Keywords are lowercased and
// trimmed; empty entries are dropped.
func (f *Filter) UpdateKeywords(words []string) {
	compiled := make([]keyword, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		compiled = append(compiled, keyword{
			word:    w,
			pattern: regexp.MustCompile(`(?i)(?:^|` + wordEdge + `)` + regexp.QuoteMeta(w) + `(?:$|` + wordEdge + `)`),
		})
	}

	f.mu.Lock()
	f.keywords = compiled
	f.mu.Unlock()

	f.logger.Info("Keywords updated", "count", len(compiled))
}

// Keywords returns a copy of the active keyword set.
func (f *Filter) Keywords() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	words := make([]string, len(f.keywords))
	for i, k := range f.keywords {
		words[i] = k.word
	}
	return words
}

// IsMatch reports whether any keyword occurs as a whole word in the
// message text. It never panics; malformed input counts as no match.
func (f *Filter) IsMatch(msg *model.Message) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("Keyword match failed, treating as no match", "panic", r)
			matched = false
		}
	}()

	if msg == nil {
		return false
	}

	text := ExtractText(msg)
	if text == "" {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, k := range f.keywords {
		if k.pattern.MatchString(text) {
			f.logger.Debug("Keyword matched", "message_id", msg.ID, "keyword", k.word)
			return true
		}
	}
	return false
}

// ExtractText joins the body, caption, entity texts and replied-to text of
// a message, lowercased and trimmed.
func ExtractText(msg *model.Message) string {
	parts := make([]string, 0, 3+len(msg.Entities))
	parts = append(parts, msg.Text, msg.Caption)
	for _, e := range msg.Entities {
		parts = append(parts, e.Text)
	}
	if msg.ReplyTo != nil {
		parts = append(parts, msg.ReplyTo.Text)
	}

	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return strings.ToLower(b.String())
}
