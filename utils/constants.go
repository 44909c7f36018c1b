package utils

import (
	"time"
)

type contextKey string

// Request context keys populated by HTTP handlers
const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
	OperatorKey  contextKey = "operator"
)

// Automation scheduling constants
const (
	// RSVPLeadTime is how long before the event the generated rsvp automation fires
	RSVPLeadTime = 30 * 24 * time.Hour

	// ReminderLeadTime is how long before the event the generated reminder fires
	ReminderLeadTime = 24 * time.Hour

	// DefaultRequestTimeout bounds every HTTP-originated flow call
	DefaultRequestTimeout = 30 * time.Second

	// DispatchRequestTimeout bounds operator-initiated trigger and resume, which dispatch a whole audience
	DispatchRequestTimeout = 5 * time.Minute
)
