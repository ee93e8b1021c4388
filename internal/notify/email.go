package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
)

const (
	SubjectBookingConfirmation = "Booking Confirmation"
	SubjectWaitlistAssignment  = "Ticket Assignment from Waiting List"
)

type Attachment struct {
	Filename  string
	ContentID string
	Data      []byte
}

type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers composed emails.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// LogMailer records emails in the service log instead of sending them.
type LogMailer struct {
	Logger *logger.Logger
}

func (m LogMailer) Send(_ context.Context, msg Email) error {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = fmt.Sprintf("%s (%d bytes)", a.Filename, len(a.Data))
	}
	m.Logger.Info("MAIL", fmt.Sprintf("to=%s subject=%q attachments=[%s]", msg.To, msg.Subject, strings.Join(names, ", ")))
	return nil
}

var emailTemplate = template.Must(template.New("assignment").Parse(`<p>Hi {{.UserName}},</p>
{{if .Waitlist}}<p>Tickets have been released for <strong>{{.EventName}}</strong> and {{.TicketCount}} of them are now yours from the waiting list.</p>
{{else}}<p>Your booking for <strong>{{.EventName}}</strong> is confirmed: {{.TicketCount}} ticket(s).</p>
{{end}}{{if .EventDate}}<p>Date: {{.EventDate}}</p>
{{end}}<ul>
{{range .Tickets}}<li>{{.}}<br><img src="cid:{{.}}.png" alt="QR code for ticket {{.}}"></li>
{{end}}</ul>
`))

// Composer renders assignment emails with one QR attachment per ticket.
type Composer struct {
	QR *qr.QRGenerator
}

func (c Composer) Compose(user *models.User, event *models.Event, a models.Assignment) (Email, error) {
	data := struct {
		UserName    string
		EventName   string
		EventDate   string
		TicketCount int
		Tickets     []string
		Waitlist    bool
	}{
		UserName:    user.FullName(),
		EventName:   event.Name,
		TicketCount: len(a.TicketIDs),
		Tickets:     a.TicketIDs,
		Waitlist:    a.Source == models.TicketSourceWaitlist,
	}
	if !event.StartsAt.IsZero() {
		data.EventDate = event.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST")
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, data); err != nil {
		return Email{}, fmt.Errorf("render email: %w", err)
	}

	msg := Email{
		To:      user.Email,
		Subject: SubjectBookingConfirmation,
		HTML:    body.String(),
	}
	if data.Waitlist {
		msg.Subject = SubjectWaitlistAssignment
	}

	for _, id := range a.TicketIDs {
		png, err := c.QR.GenerateEncryptedQR(models.Ticket{
			ID:       id,
			EventID:  a.EventID,
			HolderID: a.HolderID,
			Source:   a.Source,
			IssuedAt: a.AssignedAt,
		})
		if err != nil {
			return Email{}, fmt.Errorf("qr for ticket %s: %w", id, err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:  id + ".png",
			ContentID: id + ".png",
			Data:      png,
		})
	}
	return msg, nil
}

// Directory resolves the people and events named in an assignment.
type Directory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// EmailHandler turns consumed assignments into emails.
type EmailHandler struct {
	Directory Directory
	Composer  Composer
	Mailer    Mailer
}

func (h EmailHandler) Handle(ctx context.Context, a models.Assignment) error {
	user, err := h.Directory.GetUser(ctx, a.HolderID)
	if err != nil {
		return fmt.Errorf("holder %s: %w", a.HolderID, err)
	}
	event, err := h.Directory.GetEvent(ctx, a.EventID)
	if err != nil {
		return fmt.Errorf("event %s: %w", a.EventID, err)
	}
	msg, err := h.Composer.Compose(user, event, a)
	if err != nil {
		return err
	}
	return h.Mailer.Send(ctx, msg)
}
