package domain

import "fmt"

const (
	MaxCallIDLen     = 128
	MaxCallDomainLen = 255
)

// Call identifies the inbound dial-in that triggered a session.
type Call struct {
	ID     string
	Domain string
}

// NewCall validates the webhook fields. Domain is optional.
func NewCall(id, domain string) (Call, error) {
	if id == "" {
		return Call{}, fmt.Errorf("%w: missing required 'callId'", ErrValidation)
	}
	if len(id) > MaxCallIDLen {
		return Call{}, fmt.Errorf("%w: 'callId' too long", ErrValidation)
	}
	if len(domain) > MaxCallDomainLen {
		return Call{}, fmt.Errorf("%w: 'callDomain' too long", ErrValidation)
	}
	return Call{ID: id, Domain: domain}, nil
}
