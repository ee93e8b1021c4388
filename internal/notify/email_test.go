package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockDirectory) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	ev, _ := args.Get(0).(*models.Event)
	return ev, args.Error(1)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Email) error {
	return m.Called(ctx, msg).Error(0)
}

func composer(t *testing.T) Composer {
	gen, err := qr.NewQRGenerator("mail-secret")
	require.NoError(t, err)
	return Composer{QR: gen}
}

var (
	alice   = &models.User{ID: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Doe"}
	concert = &models.Event{ID: "e1", Name: "Harbour Lights", StartsAt: time.Date(2026, 7, 4, 20, 0, 0, 0, time.UTC)}
)

func TestCompose_DirectBooking(t *testing.T) {
	msg, err := composer(t).Compose(alice, concert, assignment())
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, SubjectBookingConfirmation, msg.Subject)
	assert.Contains(t, msg.HTML, "Alice Doe")
	assert.Contains(t, msg.HTML, "Harbour Lights")
	assert.Contains(t, msg.HTML, "2 ticket(s)")
	assert.Contains(t, msg.HTML, `cid:t1.png`)

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "t1.png", msg.Attachments[0].Filename)
	assert.Equal(t, "t2.png", msg.Attachments[1].ContentID)
	assert.Equal(t, []byte("\x89PNG"), msg.Attachments[0].Data[:4])
}

func TestCompose_WaitlistAssignment(t *testing.T) {
	a := assignment()
	a.Source = models.TicketSourceWaitlist
	a.TicketIDs = []string{"t9"}

	msg, err := composer(t).Compose(alice, &models.Event{ID: "e1", Name: "<script>"}, a)
	require.NoError(t, err)

	assert.Equal(t, SubjectWaitlistAssignment, msg.Subject)
	assert.Contains(t, msg.HTML, "waiting list")
	assert.NotContains(t, msg.HTML, "<script>")
	assert.NotContains(t, msg.HTML, "Date:")
	assert.Len(t, msg.Attachments, 1)
}

func TestEmailHandler(t *testing.T) {
	dir := new(MockDirectory)
	mailer := new(MockMailer)
	h := EmailHandler{Directory: dir, Composer: composer(t), Mailer: mailer}

	dir.On("GetUser", mock.Anything, "alice").Return(alice, nil)
	dir.On("GetEvent", mock.Anything, "e1").Return(concert, nil)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg Email) bool {
		return msg.To == "alice@example.com" && len(msg.Attachments) == 2
	})).Return(nil)

	require.NoError(t, h.Handle(context.Background(), assignment()))
	dir.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestEmailHandler_UnknownHolder(t *testing.T) {
	dir := new(MockDirectory)
	mailer := new(MockMailer)
	h := EmailHandler{Directory: dir, Composer: composer(t), Mailer: mailer}

	missing := errors.New("not found")
	dir.On("GetUser", mock.Anything, "alice").Return(nil, missing)

	err := h.Handle(context.Background(), assignment())
	assert.ErrorIs(t, err, missing)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestLogMailer(t *testing.T) {
	out := &syncBuffer{}
	m := LogMailer{Logger: logger.NewWithWriter(out)}

	require.NoError(t, m.Send(context.Background(), Email{
		To:          "bob@example.com",
		Subject:     SubjectWaitlistAssignment,
		Attachments: []Attachment{{Filename: "t1.png", Data: make([]byte, 12)}},
	}))
	assert.Contains(t, out.String(), `to=bob@example.com subject="Ticket Assignment from Waiting List" attachments=[t1.png (12 bytes)]`)
}
