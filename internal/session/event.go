package session

// Event types pushed to connections.
const (
	TypeActive    = "active_scraper"
	TypeCompleted = "completed_scraper"
	TypeFailed    = "failed_scraper"
)

// Event is the JSON message pushed over a connection.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the payload of an Event. Only the fields relevant to the
// event type are set.
type EventData struct {
	Name     string   `json:"name"`
	Progress *float64 `json:"progress,omitempty"`
	Download string   `json:"download,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ActiveEvent reports intermediate progress of the running scraper.
func ActiveEvent(name string, progress float64) Event {
	return Event{Type: TypeActive, Data: EventData{Name: name, Progress: &progress}}
}

// CompletedEvent announces the artifact of a finished scraper.
func CompletedEvent(name, download string) Event {
	return Event{Type: TypeCompleted, Data: EventData{Name: name, Download: download}}
}

// FailedEvent announces a scraper that ended without completing.
func FailedEvent(name string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: TypeFailed, Data: EventData{Name: name, Error: msg}}
}
