// Package ticket generates ticket identifiers and QR payloads for confirmed
// registrations. QR rasterization is delegated to an external renderer; this
// package only builds the payload and the image URL.
package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Prefix is the ticket ID prefix.
const Prefix = "TKT-"

// NewID returns a ticket ID: "TKT-" followed by 10 uppercase hex characters
// from a cryptographically random source. Collisions are treated as
// negligible; the unique index on registrations.ticket_id is the backstop.
func NewID() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return Prefix + strings.ToUpper(hex.EncodeToString(b)), nil
}

// QRPayload is the data encoded into a ticket's QR code.
type QRPayload struct {
	TicketID      string    `json:"ticketId"`
	EventID       uuid.UUID `json:"eventId"`
	ParticipantID uuid.UUID `json:"participantId"`
	EventName     string    `json:"eventName"`
}

// Renderer turns a QR payload into a stored image reference.
type Renderer interface {
	Render(payload QRPayload) (string, error)
}

// URLRenderer points qr_code_url at an external QR rendering service that
// encodes the JSON payload, so no image is rasterized in-process.
type URLRenderer struct {
	BaseURL string // e.g. https://api.qrserver.com/v1/create-qr-code/
	Size    int
}

// NewURLRenderer creates a renderer with sane defaults.
func NewURLRenderer(baseURL string) *URLRenderer {
	if baseURL == "" {
		baseURL = "https://api.qrserver.com/v1/create-qr-code/"
	}
	return &URLRenderer{BaseURL: baseURL, Size: 300}
}

// Render returns the image URL encoding the JSON payload.
func (r *URLRenderer) Render(payload QRPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	q := url.Values{}
	q.Set("size", fmt.Sprintf("%dx%d", r.Size, r.Size))
	q.Set("data", string(data))
	return r.BaseURL + "?" + q.Encode(), nil
}
