package models

import "errors"

var (
	// ErrConfiguration is returned when required secrets or settings are missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotAuthenticated is returned when no usable credential exists for the session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrExchange is returned when the token endpoint rejects an authorization code.
	ErrExchange = errors.New("authorization code exchange failed")
	// ErrReplayedCode is returned when an authorization code was already exchanged.
	ErrReplayedCode = errors.New("authorization code already used")
	// ErrProvider is returned when the upstream calendar fetch fails.
	ErrProvider = errors.New("calendar provider error")
	// ErrNotImplemented is returned by calendar providers that are declared but not available.
	ErrNotImplemented = errors.New("calendar provider not implemented")
	// ErrUnsupportedProvider is returned for an unknown provider kind.
	ErrUnsupportedProvider = errors.New("unsupported calendar provider")
	// ErrDelivery is returned when a report cannot be sent.
	ErrDelivery = errors.New("report delivery failed")
	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidSchedule is returned when a report schedule cannot be parsed or is incomplete.
	ErrInvalidSchedule = errors.New("invalid report schedule")
)

// ErrorKind maps sentinel errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrReplayedCode):
		return "replayed_code"
	case errors.Is(err, ErrExchange):
		return "exchange"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, ErrProvider):
		return "provider"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrInvalidSchedule):
		return "invalid_schedule"
	}
	return "unexpected"
}

// UserMessage converts an error into text that can be shown to the person who
// triggered the failing action.
func UserMessage(err error) string {
	switch ErrorKind(err) {
	case "":
		return ""
	case "configuration":
		return "Application configuration error. Please contact the administrator."
	case "replayed_code":
		return "This sign-in link was already used. Please start the authentication again."
	case "exchange":
		return "Failed to authenticate. Please try again or contact support if the issue persists."
	case "not_authenticated":
		return "You need to authenticate with your calendar first."
	case "not_implemented":
		return "This calendar integration is not yet available. Please choose Google Calendar for now."
	case "unsupported_provider":
		return "Unsupported calendar type."
	case "provider":
		return "Could not fetch your calendar events. Please try again."
	case "delivery":
		return "Failed to send report. Please check your email settings and try again."
	case "invalid_range":
		return "End date must fall after start date."
	case "invalid_schedule":
		return "Please provide a recipient, a weekday and a time (HH:MM) for the weekly report."
	}
	return "An unexpected error occurred. Please try again or contact support if the issue persists."
}
