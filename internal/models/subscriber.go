package models

import "time"

// Subscriber is one newsletter recipient for a client. Subscribers are
// soft-deactivated on unsubscribe and never hard-deleted, so the consent
// trail survives.
type Subscriber struct {
	ID               string    `json:"id"`
	ClientID         string    `json:"client_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	DateSubscribed   time.Time `json:"date_subscribed"`
	IsActive         bool      `json:"is_active"`
	UnsubscribeToken string    `json:"-"`
}
