// Package mailer sends meeting-invitation emails. It is a stateless
// fire-and-forget collaborator: it shares nothing with the signaling relay
// beyond living in the same process.
package mailer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/meetmesh/relay/internal/config"
)

// Sender delivers one invitation. Implementations must be safe for concurrent
// use; tests substitute a recording fake.
type Sender interface {
	Send(to []string, link string) error
}

// SMTPSender sends via a plain-auth SMTP submission endpoint (e.g. Gmail on
// port 587 with an app password).
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to []string, link string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	msg.WriteString("Subject: Meeting Invitation\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "You have been invited to a meeting. Join using this link: %s\r\n", link)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(s.cfg.Addr(), auth, s.cfg.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send invitation: %w", err)
	}
	return nil
}

type sendEmailRequest struct {
	// To accepts a single address or a list, matching what frontends send.
	To   addressList `json:"to"`
	Link string      `json:"link"`
}

type addressList []string

func (a *addressList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

// Handler answers POST /send-email with {to, link}.
func Handler(sender Sender, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}

		if sender == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Email is not configured"})
			return
		}

		var req sendEmailRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email and link are required"})
			return
		}

		to := make([]string, 0, len(req.To))
		for _, addr := range req.To {
			if addr = strings.TrimSpace(addr); addr != "" {
				to = append(to, addr)
			}
		}
		if len(to) == 0 || strings.TrimSpace(req.Link) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email and link are required"})
			return
		}

		if err := sender.Send(to, strings.TrimSpace(req.Link)); err != nil {
			log.Error("failed to send invitation email", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to send email"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Email sent successfully"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
