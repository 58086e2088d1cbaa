package parse

import (
	"regexp"
	"strings"

	"dormitory-housing-backend/internal/apperr"
)

var (
	spaceRe  = regexp.MustCompile(`[\s\p{Zs}]+`)
	ticketRe = regexp.MustCompile(`^[\p{L}\p{N}/\-]+$`)
)

// Identity is the normalised applicant identity used to look up applications
// for students without a session.
type Identity struct {
	LastName     string // display form, whitespace collapsed
	LastNameKey  string // lower-cased form used for matching
	TicketNumber string
}

// ParseIdentity normalises a last name and student ticket number.
func ParseIdentity(lastName, ticketNumber string) (Identity, error) {
	// 0) 把各种空白（含全角空格）压成一个空格
	name := strings.TrimSpace(spaceRe.ReplaceAllString(lastName, " "))
	if name == "" {
		return Identity{}, apperr.Validation("last name is required")
	}

	ticket := strings.TrimSpace(ticketNumber)
	if ticket == "" {
		return Identity{}, apperr.Validation("ticket number is required")
	}
	if !ticketRe.MatchString(ticket) {
		return Identity{}, apperr.Validation("ticket number %q contains invalid characters", ticketNumber)
	}

	return Identity{
		LastName:     name,
		LastNameKey:  strings.ToLower(name),
		TicketNumber: strings.ToUpper(ticket),
	}, nil
}
