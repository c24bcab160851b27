package filter_test

import (
	"testing"

	"github.com/edgard/channelrelay/internal/filter"
	"github.com/edgard/channelrelay/internal/model"
)

func TestIsMatch_WholeWord(t *testing.T) {
	t.Parallel()

	f := filter.New([]string{"react", "backend", "c++", "go"}, nil)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "Capitalised keyword", text: "React developer needed", want: true},
		{name: "Prefix of longer word", text: "reactor maintenance", want: false},
		{name: "Inflected word", text: "We are reacting to feedback", want: false},
		{name: "Keyword with punctuation", text: "Senior C++ engineer", want: true},
		{name: "Keyword followed by comma", text: "backend, frontend", want: true},
		{name: "Keyword inside hashtag", text: "#backend role", want: true},
		{name: "Keyword at end", text: "We write Go", want: true},
		{name: "Keyword as part of word", text: "Let's google it", want: false},
		{name: "No keyword", text: "Weekly newsletter", want: false},
		{name: "Empty text", text: "", want: false},
		{name: "Whitespace only", text: "   \n", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := f.IsMatch(&model.Message{ID: 1, Text: tc.text})
			if got != tc.want {
				t.Errorf("IsMatch(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestIsMatch_ExtractedFields(t *testing.T) {
	t.Parallel()

	f := filter.New([]string{"backend"}, nil)

	tests := []struct {
		name string
		msg  *model.Message
		want bool
	}{
		{name: "Nil message", msg: nil, want: false},
		{name: "Caption only", msg: &model.Message{Caption: "Backend role, see picture"}, want: true},
		{name: "Entity text", msg: &model.Message{Text: "Apply here", Entities: []model.Entity{{Type: "text_url", Text: "https://jobs.example.com/backend"}}}, want: true},
		{name: "Reply text", msg: &model.Message{Text: "Still open!", ReplyTo: &model.Reply{ID: 3, Text: "Hiring backend engineer"}}, want: true},
		{name: "Reply without text", msg: &model.Message{Text: "Still open!", ReplyTo: &model.Reply{ID: 3}}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := f.IsMatch(tc.msg); got != tc.want {
				t.Errorf("IsMatch() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpdateKeywords(t *testing.T) {
	t.Parallel()

	f := filter.New([]string{"python"}, nil)
	msg := &model.Message{ID: 7, Text: "Golang engineer wanted"}

	if f.IsMatch(msg) {
		t.Fatalf("expected no match before update")
	}

	f.UpdateKeywords([]string{"  GOLANG ", "", "golang"})

	if !f.IsMatch(msg) {
		t.Errorf("expected match after update")
	}
	if got := f.Keywords(); len(got) != 2 || got[0] != "golang" {
		t.Errorf("Keywords() = %v, want [golang golang]", got)
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	msg := &model.Message{
		Text:     "  Hiring ",
		Caption:  "Remote",
		Entities: []model.Entity{{Type: "bold", Text: "NOW"}},
		ReplyTo:  &model.Reply{Text: "Earlier post"},
	}

	want := "hiring remote now earlier post"
	if got := filter.ExtractText(msg); got != want {
		t.Errorf("ExtractText() = %q, want %q", got, want)
	}
}
