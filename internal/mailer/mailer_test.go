package mailer

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSender struct {
	to   []string
	link string
	err  error
}

func (f *fakeSender) Send(to []string, link string) error {
	f.to = to
	f.link = link
	return f.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_SendsInvitation(t *testing.T) {
	sender := &fakeSender{}
	h := Handler(sender, discardLogger())

	rec := post(t, h, `{"to":"guest@example.com","link":"https://meet.example.com/room/abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(sender.to) != 1 || sender.to[0] != "guest@example.com" {
		t.Fatalf("to = %v", sender.to)
	}
	if sender.link != "https://meet.example.com/room/abc" {
		t.Fatalf("link = %q", sender.link)
	}
	if !strings.Contains(rec.Body.String(), "Email sent successfully") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandler_AcceptsAddressList(t *testing.T) {
	sender := &fakeSender{}
	h := Handler(sender, discardLogger())

	rec := post(t, h, `{"to":["a@example.com","b@example.com"],"link":"https://meet.example.com/r/x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(sender.to) != 2 {
		t.Fatalf("to = %v", sender.to)
	}
}

func TestHandler_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no recipient", `{"link":"https://meet.example.com/r/x"}`},
		{"no link", `{"to":"a@example.com"}`},
		{"empty recipient", `{"to":"  ","link":"https://meet.example.com/r/x"}`},
		{"not json", `to=a@example.com`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			rec := post(t, Handler(sender, discardLogger()), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if sender.to != nil {
				t.Fatalf("sender should not have been called, got %v", sender.to)
			}
		})
	}
}

func TestHandler_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp: connection refused")}
	rec := post(t, Handler(sender, discardLogger()), `{"to":"a@example.com","link":"https://meet.example.com/r/x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to send email") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandler_NotConfigured(t *testing.T) {
	rec := post(t, Handler(nil, discardLogger()), `{"to":"a@example.com","link":"https://x"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
