package response

import "github.com/vietanh2810/eventfinder-api/internal/domain"

type EventListResponse struct {
	Events []domain.Event `json:"events"`
	Count  int            `json:"count"`
}

func NewEventListResponse(events []domain.Event) EventListResponse {
	if events == nil {
		events = []domain.Event{}
	}

	return EventListResponse{Events: events, Count: len(events)}
}

type HealthcheckResponse struct {
	Status string `json:"status"`
}
