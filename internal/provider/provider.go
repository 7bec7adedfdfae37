// Package provider declares the calendar provider capability shared by every
// calendar backend, along with the variants that are declared but unavailable.
package provider

import (
	"context"
	"fmt"
	"strings"

	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
)

// Kind identifies a calendar provider variant.
type Kind string

const (
	Google  Kind = "google"
	Outlook Kind = "outlook"
	Apple   Kind = "apple"
	CalDAV  Kind = "caldav"
)

// Kinds lists the variants in the order they are offered to users.
var Kinds = []Kind{Google, Outlook, Apple, CalDAV}

// ParseKind resolves a user supplied provider name such as "Google" or "caldav".
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, name)
}

// Provider is the capability every calendar backend offers.
type Provider interface {
	Kind() Kind
	// Authenticate establishes a usable connection from the stored credential.
	Authenticate(ctx context.Context) error
	// FetchEvents returns the events starting within r, ordered by start time.
	FetchEvents(ctx context.Context, r daterange.Range) ([]models.Event, error)
}

// Unavailable is a declared provider whose integration does not exist yet.
type Unavailable struct {
	kind Kind
}

// NewUnavailable returns a provider that always fails with ErrNotImplemented.
func NewUnavailable(kind Kind) *Unavailable {
	return &Unavailable{kind: kind}
}

func (u *Unavailable) Kind() Kind { return u.kind }

func (u *Unavailable) Authenticate(context.Context) error {
	return fmt.Errorf("%w: %s", models.ErrNotImplemented, u.kind)
}

func (u *Unavailable) FetchEvents(context.Context, daterange.Range) ([]models.Event, error) {
	return nil, fmt.Errorf("%w: %s", models.ErrNotImplemented, u.kind)
}
