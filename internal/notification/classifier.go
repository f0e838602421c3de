package notification

import (
	"context"
	"strings"

	"github.com/stafflane/be-hr-requests/internal/repository"
	"github.com/stafflane/be-hr-requests/internal/workflow"
)

// ItineraryReader reads a travel request's itinerary line items.
type ItineraryReader interface {
	GetItinerary(ctx context.Context, requestID string) ([]*repository.ItinerarySegment, error)
}

// DestinationClassifier decides which processing queue a fully approved
// travel request lands in. Overseas trips, and any trip with a flight
// segment in its itinerary, go to the flights desk; ground-only domestic
// trips need no further processing queue.
type DestinationClassifier struct {
	itineraries ItineraryReader
}

// NewDestinationClassifier creates a classifier over the itinerary store.
func NewDestinationClassifier(itineraries ItineraryReader) *DestinationClassifier {
	return &DestinationClassifier{itineraries: itineraries}
}

// ProcessingPermission returns the processing permission for a travel request
// at the moment it becomes fully approved. ok is false when no processing
// queue applies. Non-travel requests and non-approved statuses are never
// classified here.
func (c *DestinationClassifier) ProcessingPermission(ctx context.Context, req *repository.Request) (string, bool, error) {
	if req.EntityType != repository.EntityTravel || req.Status != workflow.StatusApproved {
		return "", false, nil
	}
	if req.TravelType != nil && strings.EqualFold(*req.TravelType, "Overseas") {
		return "process_flights", true, nil
	}

	segments, err := c.itineraries.GetItinerary(ctx, req.ID)
	if err != nil {
		return "", false, err
	}
	for _, segment := range segments {
		if segment.Mode == repository.SegmentModeFlight {
			return "process_flights", true, nil
		}
	}
	return "", false, nil
}
