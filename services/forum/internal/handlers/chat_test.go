package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/example/acadmate/services/forum/internal/chatbot"
)

type fakeAsker struct {
	answer string
	err    error
	got    string
}

func (f *fakeAsker) Ask(_ context.Context, q string) (*chatbot.Answer, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return &chatbot.Answer{Answer: f.answer}, nil
}

func TestAskChatbot(t *testing.T) {
	d, _ := newDeps(t)
	bot := &fakeAsker{answer: "42"}
	d.Chatbot = bot

	rr := serve(AskChatbot(d), setupReq(http.MethodPost, "/v1/chat/ask", `{"question":"  meaning of life?  "}`, nil, alice))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[chatbot.Answer](t, rr); got.Answer != "42" {
		t.Fatalf("unexpected answer %q", got.Answer)
	}
	if bot.got != "meaning of life?" {
		t.Fatalf("expected trimmed question, got %q", bot.got)
	}
}

func TestAskChatbot_Validation(t *testing.T) {
	d, _ := newDeps(t)
	d.Chatbot = &fakeAsker{answer: "x"}

	for _, body := range []string{`{"question":"   "}`, `{"question":"` + strings.Repeat("q", 2001) + `"}`} {
		rr := serve(AskChatbot(d), setupReq(http.MethodPost, "/v1/chat/ask", body, nil, alice))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	}
}

func TestAskChatbot_Unavailable(t *testing.T) {
	d, _ := newDeps(t)
	d.Chatbot = &fakeAsker{err: fmt.Errorf("%w: breaker open", chatbot.ErrUnavailable)}

	rr := serve(AskChatbot(d), setupReq(http.MethodPost, "/v1/chat/ask", `{"question":"hi"}`, nil, alice))
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "UPSTREAM_UNAVAILABLE" {
		t.Fatalf("expected 503 UPSTREAM_UNAVAILABLE, got %d: %s", rr.Code, rr.Body.String())
	}

	d.Chatbot = nil
	rr = serve(AskChatbot(d), setupReq(http.MethodPost, "/v1/chat/ask", `{"question":"hi"}`, nil, alice))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without upstream, got %d", rr.Code)
	}
}

func TestAskChatbot_Unauthorized(t *testing.T) {
	d, _ := newDeps(t)
	rr := serve(AskChatbot(d), setupReq(http.MethodPost, "/v1/chat/ask", `{"question":"hi"}`, nil, anon))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
