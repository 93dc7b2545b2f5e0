package offline

// EventType identifies a queue change
type EventType string

const (
	EventEnqueued          EventType = "enqueued"
	EventRemoved           EventType = "removed"
	EventRetried           EventType = "retried"
	EventFailedPermanently EventType = "failed_permanently"
	EventCleared           EventType = "cleared"
	EventFailedDismissed   EventType = "failed_dismissed"
)

// Event is delivered to queue subscribers after the change is applied
type Event struct {
	Type    EventType     `json:"type"`
	Request QueuedRequest `json:"request"`
	// Size is the number of pending entries after the change
	Size int `json:"size"`
}

// Listener receives queue events. Listeners run on the mutating goroutine and must not block.
type Listener func(Event)
