package handoff

import (
	"net/url"
	"strings"

	"github.com/avstrong/slotreserve/internal/reservation"
)

const (
	DefaultBrand       = "ProStyle"
	DefaultCountryCode = "91"

	baseURL = "https://wa.me/"
	rule    = "-------------------------"
)

type Config struct {
	Brand string
	// Phone is the business number the client messages, without country code.
	Phone       string
	CountryCode string
}

// Formatter renders confirmed bookings for the chat handoff. It never touches
// the store.
type Formatter struct {
	brand       string
	phone       string
	countryCode string
}

type Handoff struct {
	Message string `json:"message"`
	// Link is empty when no business phone is configured.
	Link string `json:"link,omitempty"`
}

func New(conf Config) *Formatter {
	f := &Formatter{
		brand:       strings.TrimSpace(conf.Brand),
		phone:       digits(conf.Phone),
		countryCode: digits(conf.CountryCode),
	}

	if f.brand == "" {
		f.brand = DefaultBrand
	}

	if f.countryCode == "" {
		f.countryCode = DefaultCountryCode
	}

	return f
}

func (f *Formatter) Message(b reservation.Booking) string {
	notes := b.Notes
	if strings.TrimSpace(notes) == "" {
		notes = "None"
	}

	var sb strings.Builder

	sb.WriteString("RESERVATION REQUEST: " + f.brand + "\n")
	sb.WriteString(rule + "\n")
	sb.WriteString("ID: " + b.BookingID + "\n")
	sb.WriteString("CLIENT: " + b.Name + "\n")
	sb.WriteString("PHONE: " + b.Phone + "\n")
	sb.WriteString("SERVICE: " + b.ServiceName + "\n")
	sb.WriteString("DATE: " + b.Slot.Date.String() + "\n")
	sb.WriteString("TIME: " + b.Slot.Time + "\n")
	sb.WriteString("NOTES: " + notes)

	return sb.String()
}

func (f *Formatter) Link(message string) string {
	if f.phone == "" {
		return ""
	}

	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")

	return baseURL + f.countryCode + f.phone + "?text=" + text
}

func (f *Formatter) For(b reservation.Booking) Handoff {
	msg := f.Message(b)

	return Handoff{Message: msg, Link: f.Link(msg)}
}

func digits(s string) string {
	var sb strings.Builder

	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
