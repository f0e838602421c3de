package repository

import "time"

// ── Request entity types ─────────────────────────────────────────────────────

// Entity type codes. These appear in request IDs, permission names and
// notification subjects, so the exact strings are part of the wire contract.
const (
	EntityTravel        = "trf"
	EntityExpenseClaim  = "claims"
	EntityVisa          = "visa"
	EntityTransport     = "transport"
	EntityAccommodation = "accommodation"
)

// EntityTypes lists every supported request entity type.
var EntityTypes = []string{
	EntityTravel,
	EntityExpenseClaim,
	EntityVisa,
	EntityTransport,
	EntityAccommodation,
}

// IsEntityType reports whether code is a known entity type.
func IsEntityType(code string) bool {
	for _, t := range EntityTypes {
		if t == code {
			return true
		}
	}
	return false
}

// Request is one employee request moving through an approval sequence.
// Status strings are the exact vocabulary shared with persistence and UI.
type Request struct {
	ID             string    `json:"id"` // entity-type-prefixed, e.g. TRF-2026-0001
	EntityType     string    `json:"entityType"`
	RequestorID    string    `json:"requestorId"`
	RequestorName  string    `json:"requestorName"`
	RequestorEmail string    `json:"requestorEmail,omitempty"`
	StaffID        string    `json:"staffId,omitempty"`
	Department     string    `json:"department"`
	Title          string    `json:"title"`
	Purpose        *string   `json:"purpose,omitempty"`
	Amount         *int64    `json:"amount,omitempty"`     // cents; nil for requests without a monetary value
	TravelType     *string   `json:"travelType,omitempty"` // trf only: Domestic | Overseas
	DateFrom       *string   `json:"dateFrom,omitempty"`   // YYYY-MM-DD
	DateTo         *string   `json:"dateTo,omitempty"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submittedAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StepRecord is one immutable approval-history row. Records exist only for
// roles that actually acted; pending future stages are synthesized on read.
type StepRecord struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entityId"`
	Role      string    `json:"role"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	Action    string    `json:"action"` // submitted | approved | rejected | delegated
	Comments  *string   `json:"comments,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Step record actions.
const (
	ActionSubmitted = "submitted"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionDelegated = "delegated"
)

// Itinerary segment transport modes.
const (
	SegmentModeFlight = "flight"
	SegmentModeGround = "ground"
)

// ItinerarySegment is one leg of a travel request's itinerary. The flights
// routing decision at the Approved stage inspects these rows.
type ItinerarySegment struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"requestId"`
	SegmentNumber int       `json:"segmentNumber"`
	Mode          string    `json:"mode"` // flight | ground
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartDate    *string   `json:"departDate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TimelineEntry is one row of the synthesized approval timeline: actual step
// records merged with the static expected role sequence.
type TimelineEntry struct {
	Role      string     `json:"role"`
	Status    string     `json:"status"` // Completed | Pending | Not Started | Rejected
	ActorName string     `json:"actorName,omitempty"`
	Action    string     `json:"action,omitempty"`
	Comments  *string    `json:"comments,omitempty"`
	ActedAt   *time.Time `json:"actedAt,omitempty"`
}
