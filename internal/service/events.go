package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventNodeAppeared      EventType = "node_appeared"
	EventNodeGone          EventType = "node_gone"
	EventLinkAppeared      EventType = "link_appeared"
	EventLinkGone          EventType = "link_gone"
	EventLinkWeightChanged EventType = "link_weight_changed"
	EventNodeSelected      EventType = "node_selected"
	EventNodeUpdated       EventType = "node_updated"
	EventLayoutApplied     EventType = "layout_applied"
	EventLayoutCleared     EventType = "layout_cleared"
	EventTopologyCleared   EventType = "topology_cleared"
	EventSimulationToggled EventType = "simulation_toggled"
	EventSnapshot          EventType = "snapshot"
	EventDiscovery         EventType = "discovery"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers without blocking
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
