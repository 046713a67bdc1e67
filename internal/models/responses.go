package models

import "time"

// PaginationInfo describes the page window of a list response.
type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}

// SyncStatus reports the outcome of an inbound refresh. A failed refresh is
// surfaced here as metadata; the thread list itself still serves cached rows.
type SyncStatus struct {
	Fetched        int    `json:"fetched"`
	Saved          int    `json:"saved"`
	ThreadsTouched int    `json:"threads_touched"`
	Error          string `json:"error,omitempty"`
}

// ThreadsResponse is the paginated thread-list payload.
type ThreadsResponse struct {
	Threads    []*ThreadSummary `json:"threads"`
	Pagination PaginationInfo   `json:"pagination"`
	Sync       *SyncStatus      `json:"sync,omitempty"`
}

// ThreadDetailResponse is the full-conversation payload: every message of
// one thread, oldest first.
type ThreadDetailResponse struct {
	ThreadID     string     `json:"thread_id"`
	Subject      string     `json:"subject"`
	Messages     []*Message `json:"messages"`
	MessageCount int        `json:"message_count"`
	UnreadCount  int        `json:"unread_count"`
}

// SendResponse is returned by the send/reply/forward operations.
type SendResponse struct {
	RemoteID   string    `json:"remote_id"`
	ThreadID   string    `json:"thread_id"`
	Recipients []string  `json:"recipients"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewsletterAck is the immediate acknowledgement for a newsletter send; the
// batch run itself continues in the background.
type NewsletterAck struct {
	NewsletterID    string          `json:"newsletter_id"`
	TotalRecipients int             `json:"total_recipients"`
	TotalBatches    int             `json:"total_batches"`
	EstimatedTime   string          `json:"estimated_time"`
	RateLimit       RateLimitStatus `json:"rate_limit"`
}

// RateLimitStatus is the advisory rate-ledger snapshot for a client.
type RateLimitStatus struct {
	Hourly          int  `json:"hourly"`
	Daily           int  `json:"daily"`
	HourlyLimit     int  `json:"hourly_limit"`
	DailyLimit      int  `json:"daily_limit"`
	RemainingHourly int  `json:"remaining_hourly"`
	RemainingDaily  int  `json:"remaining_daily"`
	CanSend         bool `json:"can_send"`
}

// RethreadResponse reports a re-threading maintenance run.
type RethreadResponse struct {
	TotalEmails int      `json:"total_emails"`
	Updated     int      `json:"updated"`
	Errors      []string `json:"errors,omitempty"`
}
