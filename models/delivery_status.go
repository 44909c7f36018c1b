package models

import "strings"

// DeliveryStatus is the provider-reported state of one outbound message, stored lower-cased
type DeliveryStatus string

const (
	DeliveryStatusAccepted  DeliveryStatus = "accepted"
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusQueued    DeliveryStatus = "queued"
	DeliveryStatusSending   DeliveryStatus = "sending"
	DeliveryStatusSent      DeliveryStatus = "sent"

	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"

	DeliveryStatusFailed      DeliveryStatus = "failed"
	DeliveryStatusUndelivered DeliveryStatus = "undelivered"
	DeliveryStatusCanceled    DeliveryStatus = "canceled"
)

type deliveryStatusClass int

const (
	classUnknown deliveryStatusClass = iota
	classPending
	classSucceeded
	classFailed
)

var deliveryStatusVocabulary = map[DeliveryStatus]deliveryStatusClass{
	DeliveryStatusAccepted:    classPending,
	DeliveryStatusScheduled:   classPending,
	DeliveryStatusQueued:      classPending,
	DeliveryStatusSending:     classPending,
	DeliveryStatusSent:        classPending,
	DeliveryStatusDelivered:   classSucceeded,
	DeliveryStatusRead:        classSucceeded,
	DeliveryStatusFailed:      classFailed,
	DeliveryStatusUndelivered: classFailed,
	DeliveryStatusCanceled:    classFailed,
}

// CanonicalDeliveryStatus lower-cases and trims a provider status.
// The second return value is false when the status is outside the known vocabulary;
// such values are still returned so callers can store them as-is.
func CanonicalDeliveryStatus(raw string) (DeliveryStatus, bool) {
	s := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, known := deliveryStatusVocabulary[s]
	return s, known
}

func (s DeliveryStatus) String() string {
	return string(s)
}

// Known reports whether s belongs to the fixed vocabulary
func (s DeliveryStatus) Known() bool {
	_, ok := deliveryStatusVocabulary[s]
	return ok
}

// IsTerminal reports whether no further provider transition is expected
func (s DeliveryStatus) IsTerminal() bool {
	c := deliveryStatusVocabulary[s]
	return c == classSucceeded || c == classFailed
}

// IsSuccess reports whether s is a terminal success
func (s DeliveryStatus) IsSuccess() bool {
	return deliveryStatusVocabulary[s] == classSucceeded
}

// IsFailure reports whether s is a terminal failure
func (s DeliveryStatus) IsFailure() bool {
	return deliveryStatusVocabulary[s] == classFailed
}

var pendingRank = map[DeliveryStatus]int{
	DeliveryStatusAccepted:  1,
	DeliveryStatusScheduled: 1,
	DeliveryStatusQueued:    2,
	DeliveryStatusSending:   3,
	DeliveryStatusSent:      4,
}

// Supersedes reports whether moving a record from current to s is forward progress.
// Terminal statuses are never left for a non-terminal one. Unknown statuses only
// replace or get replaced by other non-terminal statuses.
func (s DeliveryStatus) Supersedes(current DeliveryStatus) bool {
	if s == current {
		return false
	}
	if current.IsTerminal() {
		return s.IsTerminal()
	}
	if s.IsTerminal() {
		return true
	}

	next, nextKnown := pendingRank[s]
	prev, prevKnown := pendingRank[current]
	if !nextKnown || !prevKnown {
		return true
	}
	return next > prev
}
