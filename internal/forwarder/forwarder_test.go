package forwarder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/model"
)

type fakeBot struct {
	me       *models.User
	meErr    error
	chats    map[string]*models.ChatFullInfo
	sendErr   error
	sendCalls int
	sent      []*bot.SendMessageParams
	getChats []any
}

func (f *fakeBot) GetMe(context.Context) (*models.User, error) {
	return f.me, f.meErr
}

func (f *fakeBot) GetChat(_ context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error) {
	f.getChats = append(f.getChats, params.ChatID)
	name, _ := params.ChatID.(string)
	if chat, ok := f.chats[name]; ok {
		return chat, nil
	}
	return nil, fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest)
}

func (f *fakeBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func newReady(t *testing.T, api *fakeBot) *Forwarder {
	t.Helper()
	if api.me == nil {
		api.me = &models.User{ID: 777, Username: "relay_bot", IsBot: true}
	}
	f := New(api, "jobs", nil)
	if err := f.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return f
}

func TestInitialize_Failure(t *testing.T) {
	t.Parallel()

	f := New(&fakeBot{meErr: errors.New("unauthorized")}, "jobs", nil)
	if err := f.Initialize(t.Context()); !apperrors.IsConnectivity(err) {
		t.Fatalf("Initialize error = %v, want ConnectivityError", err)
	}
	if _, err := f.Forward(t.Context(), &model.Message{ID: 1}, "1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Forward before init error = %v, want ErrNotInitialized", err)
	}
}

func TestValidateDestination(t *testing.T) {
	t.Parallel()

	api := &fakeBot{chats: map[string]*models.ChatFullInfo{
		"@jobs_digest": {ID: -1001234567890, Title: "Jobs digest"},
		"@alias_of_me": {ID: 777},
	}}
	f := newReady(t, api)

	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "Numeric passes through", input: "-1001234567890", want: "-1001234567890"},
		{name: "Positive numeric", input: "123456", want: "123456"},
		{name: "Username resolved", input: "@jobs_digest", want: "-1001234567890"},
		{name: "Username without at", input: "jobs_digest", want: "-1001234567890"},
		{name: "Lookup failure falls back", input: "unknown_chat", want: "@unknown_chat"},
		{name: "Own username", input: "@Relay_Bot", wantError: true},
		{name: "Resolves to self", input: "@alias_of_me", wantError: true},
		{name: "Empty", input: "  ", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.ValidateDestination(t.Context(), tc.input)
			if tc.wantError {
				if !apperrors.IsDestination(err) {
					t.Fatalf("error = %v, want DestinationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateDestination failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateDestination(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestForward(t *testing.T) {
	t.Parallel()

	api := &fakeBot{}
	f := newReady(t, api)

	msg := &model.Message{ID: 5, Text: "Hiring backend engineer", Date: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	sent, err := f.Forward(t.Context(), msg, "-100200")
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if sent.ID != 1 || len(api.sent) != 1 {
		t.Fatalf("expected exactly one sent message")
	}

	params := api.sent[0]
	if id, ok := params.ChatID.(int64); !ok || id != -100200 {
		t.Errorf("ChatID = %#v, want int64(-100200)", params.ChatID)
	}
	if params.ParseMode != models.ParseModeHTML {
		t.Errorf("ParseMode = %q, want HTML", params.ParseMode)
	}
	for _, want := range []string{"@jobs", "2026-03-01 09:30:00 UTC", "#5", "https://t.me/jobs/5", "Hiring backend engineer"} {
		if !strings.Contains(params.Text, want) {
			t.Errorf("text %q does not contain %q", params.Text, want)
		}
	}

	if _, err := f.Forward(t.Context(), msg, "@jobs_digest"); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if id, ok := api.sent[1].ChatID.(string); !ok || id != "@jobs_digest" {
		t.Errorf("ChatID = %#v, want \"@jobs_digest\"", api.sent[1].ChatID)
	}
}

func TestForward_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sendErr error
		check   func(error) bool
		hint    string
	}{
		{name: "Chat not found", sendErr: fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest), check: apperrors.IsDestination, hint: hintNotFound},
		{name: "Forbidden", sendErr: fmt.Errorf("%w, Forbidden: bot is not a member of the channel chat", bot.ErrorForbidden), check: apperrors.IsDestination, hint: hintForbidden},
		{name: "Not enough rights", sendErr: errors.New("Bad Request: not enough rights to send text messages to the chat"), check: apperrors.IsDestination, hint: hintForbidden},
		{name: "Too long", sendErr: fmt.Errorf("%w, Bad Request: message is too long", bot.ErrorBadRequest), check: apperrors.IsDestination, hint: hintTooLong},
		{name: "Network", sendErr: errors.New("dial tcp: i/o timeout"), check: apperrors.IsTransientDelivery},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newReady(t, &fakeBot{sendErr: tc.sendErr})
			_, err := f.Forward(t.Context(), &model.Message{ID: 1, Text: "x"}, "-1")
			if !tc.check(err) {
				t.Fatalf("error = %v has unexpected type", err)
			}
			var destErr *apperrors.DestinationError
			if tc.hint != "" && errors.As(err, &destErr) && destErr.Hint != tc.hint {
				t.Errorf("hint = %q, want %q", destErr.Hint, tc.hint)
			}
			if !errors.Is(err, tc.sendErr) {
				t.Errorf("error does not wrap the transport error")
			}
		})
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	f := newReady(t, &fakeBot{})
	if err := f.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := f.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if _, err := f.Forward(t.Context(), &model.Message{ID: 1}, "1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Forward after Stop error = %v, want ErrNotInitialized", err)
	}
}

func TestForward_PausesAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	api := &fakeBot{sendErr: errors.New("Bad Gateway")}
	f := newReady(t, api)
	msg := &model.Message{ID: 3, Text: "golang"}

	for i := 0; i < breakerMaxFailures; i++ {
		if _, err := f.Forward(t.Context(), msg, "-100"); !apperrors.IsTransientDelivery(err) {
			t.Fatalf("attempt %d: err = %v, want TransientDeliveryError", i+1, err)
		}
	}

	_, err := f.Forward(t.Context(), msg, "-100")
	if !apperrors.IsTransientDelivery(err) {
		t.Fatalf("err = %v, want TransientDeliveryError while paused", err)
	}
	if api.sendCalls != breakerMaxFailures {
		t.Errorf("SendMessage called %d times, want %d", api.sendCalls, breakerMaxFailures)
	}
}

func TestForward_DestinationErrorsDoNotPause(t *testing.T) {
	t.Parallel()

	api := &fakeBot{sendErr: fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest)}
	f := newReady(t, api)

	for i := 0; i < breakerMaxFailures+2; i++ {
		if _, err := f.Forward(t.Context(), &model.Message{ID: 4}, "-100"); !apperrors.IsDestination(err) {
			t.Fatalf("attempt %d: err = %v, want DestinationError", i+1, err)
		}
	}
	if api.sendCalls != breakerMaxFailures+2 {
		t.Errorf("SendMessage called %d times, want every call to reach the API", api.sendCalls)
	}
}
