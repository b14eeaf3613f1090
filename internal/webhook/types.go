package webhook

// Entity reference types carried by Notion webhook events.
const (
	EntityPage     = "page"
	EntityDatabase = "database"
	EntityComment  = "comment"
)

// EventCommentCreated is the only comment event this service recognizes.
const EventCommentCreated = "comment.created"

// Entity identifies the remote object an event refers to.
type Entity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// EventData carries optional event details.
type EventData struct {
	UpdatedProperties []string `json:"updated_properties,omitempty"`
	Parent            *Entity  `json:"parent,omitempty"`
}

// EventPayload is a steady-state webhook delivery as sent by Notion.
// Only the fields this service acts on are decoded.
type EventPayload struct {
	ID            string     `json:"id,omitempty"`
	Timestamp     string     `json:"timestamp,omitempty"`
	WorkspaceName string     `json:"workspace_name,omitempty"`
	AttemptNumber int        `json:"attempt_number,omitempty"`
	Entity        Entity     `json:"entity"`
	Type          string     `json:"type"`
	Data          *EventData `json:"data,omitempty"`
}

// Event is a validated, normalized webhook notification, immutable after
// construction and discarded after handling.
type Event struct {
	EntityType        string
	EntityID          string
	EventType         string
	UpdatedProperties []string
	RawBody           []byte
	Signature         string
}

// AckResponse is the fixed acknowledgement returned for accepted deliveries.
type AckResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the JSON response for rejected deliveries.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusResponse reports whether a verification secret is established,
// without revealing its value.
type StatusResponse struct {
	Verified  bool   `json:"verified"`
	Timestamp string `json:"timestamp"`
}

// HealthzResponse is the GET /healthz payload.
type HealthzResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	DeliveryCount int             `json:"delivery_count"`
	Checks        map[string]bool `json:"checks"`
}

// RootResponse is the GET / service banner.
type RootResponse struct {
	Message   string `json:"message"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
