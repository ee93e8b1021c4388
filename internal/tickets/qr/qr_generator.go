package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// Payload is what a scanner recovers from a ticket's QR code.
type Payload struct {
	TicketID string    `json:"tid"`
	EventID  string    `json:"eid"`
	HolderID string    `json:"hid"`
	IssuedAt time.Time `json:"iat"`
}

type QRGenerator struct {
	aead cipher.AEAD
	size int
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	if secret == "" {
		return nil, errors.New("qr secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{aead: aead, size: 256}, nil
}

// Token encrypts the ticket into the opaque string encoded in the QR image.
func (q *QRGenerator) Token(ticket models.Ticket) (string, error) {
	data, err := json.Marshal(Payload{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		HolderID: ticket.HolderID,
		IssuedAt: ticket.IssuedAt,
	})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// GenerateEncryptedQR renders the ticket token as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	token, err := q.Token(ticket)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, q.size)
}

// Open reverses Token. Tampered or foreign tokens fail authentication.
func (q *QRGenerator) Open(token string) (Payload, error) {
	var p Payload
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, fmt.Errorf("decode token: %w", err)
	}
	ns := q.aead.NonceSize()
	if len(sealed) < ns {
		return p, errors.New("token too short")
	}
	data, err := q.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return p, fmt.Errorf("open token: %w", err)
	}
	err = json.Unmarshal(data, &p)
	return p, err
}
