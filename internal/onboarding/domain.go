// Package onboarding collects the customer profile each new account completes once.
package onboarding

import (
	"fmt"
	"strings"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
)

// Onboarding statuses stored on users.onboarding_status.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// MessageFieldsRequired is returned verbatim when any profile field is blank.
const MessageFieldsRequired = "All fields are required"

// ErrIncomplete reports a profile with blank fields.
var ErrIncomplete = fmt.Errorf("%w: %s", httpx.ErrValidation, MessageFieldsRequired)

// Profile is the onboarding form. Every field is required.
type Profile struct {
	FirstName           string `json:"firstName" validate:"required"`
	LastName            string `json:"lastName" validate:"required"`
	PhoneNumber         string `json:"phoneNumber" validate:"required"`
	DateOfBirth         string `json:"dateOfBirth" validate:"required"`
	Address             string `json:"address" validate:"required"`
	City                string `json:"city" validate:"required"`
	State               string `json:"state" validate:"required"`
	ZipCode             string `json:"zipCode" validate:"required"`
	Country             string `json:"country" validate:"required"`
	Occupation          string `json:"occupation" validate:"required"`
	SourceOfFunds       string `json:"sourceOfFunds" validate:"required"`
	PurposeOfRemittance string `json:"purposeOfRemittance" validate:"required"`
}

// Normalize trims every field.
func (p Profile) Normalize() Profile {
	fields := []*string{
		&p.FirstName, &p.LastName, &p.PhoneNumber, &p.DateOfBirth, &p.Address, &p.City,
		&p.State, &p.ZipCode, &p.Country, &p.Occupation, &p.SourceOfFunds, &p.PurposeOfRemittance,
	}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
	return p
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Details is the JSON stored in users.onboarding_data.
type Details struct {
	PhoneNumber         string `json:"phoneNumber"`
	DateOfBirth         string `json:"dateOfBirth"`
	Address             string `json:"address"`
	City                string `json:"city"`
	State               string `json:"state"`
	ZipCode             string `json:"zipCode"`
	Country             string `json:"country"`
	Occupation          string `json:"occupation"`
	SourceOfFunds       string `json:"sourceOfFunds"`
	PurposeOfRemittance string `json:"purposeOfRemittance"`
}

// Details extracts the stored onboarding data.
func (p Profile) Details() Details {
	return Details{
		PhoneNumber:         p.PhoneNumber,
		DateOfBirth:         p.DateOfBirth,
		Address:             p.Address,
		City:                p.City,
		State:               p.State,
		ZipCode:             p.ZipCode,
		Country:             p.Country,
		Occupation:          p.Occupation,
		SourceOfFunds:       p.SourceOfFunds,
		PurposeOfRemittance: p.PurposeOfRemittance,
	}
}

// UserSummary is the public view of the onboarded account.
type UserSummary struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	OnboardingStatus string `json:"-"`
}

// Completed reports whether onboarding has finished.
func (u *UserSummary) Completed() bool {
	return u != nil && u.OnboardingStatus == StatusCompleted
}
