package agentd

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/agentd/internal/app"
	"github.com/bft-labs/agentd/pkg/lifecycle"
	"github.com/bft-labs/agentd/pkg/log"
)

// EventType names the lifecycle events emitted by the orchestrator.
type EventType string

const (
	EventAgentRegistered   EventType = "agent_registered"
	EventAgentStarted      EventType = "agent_started"
	EventAgentStopped      EventType = "agent_stopped"
	EventAgentRestarted    EventType = "agent_restarted"
	EventAgentUnregistered EventType = "agent_unregistered"
	EventAgentError        EventType = "agent_error"
	EventStateChange       EventType = "state_change"
	EventHealthCheck       EventType = "health_check"
)

// Event is one entry on the orchestrator's event stream. From/To are set
// for state_change events, Score for health_check events, Err for
// agent_error events.
type Event struct {
	// ID uniquely identifies this event occurrence.
	ID string

	Type      EventType
	AgentID   string
	Timestamp time.Time
	Message   string
	Err       error
	From      lifecycle.State
	To        lifecycle.State
	Score     int
}

// Subscriber receives events. Subscribers are invoked synchronously from
// lifecycle operations and should return quickly.
type Subscriber func(Event)

// dispatcher adapts the internal emitter to the public event stream:
// it stamps each event with a uuid and fans it out to all subscribers,
// containing subscriber panics.
type dispatcher struct {
	logger log.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs []Subscriber
}

func (d *dispatcher) subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

func (d *dispatcher) Emit(e app.Event) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventType(e.Kind),
		AgentID:   e.AgentID,
		Timestamp: d.now(),
		Message:   e.Message,
		Err:       e.Err,
		From:      e.From,
		To:        e.To,
		Score:     e.Score,
	}
	for _, fn := range subs {
		d.deliver(fn, ev)
	}
}

// deliver invokes one subscriber; a panicking observer is logged and
// contained so it can never corrupt the orchestrator.
func (d *dispatcher) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event subscriber panicked",
				log.String("event", string(ev.Type)),
				log.String("agent", ev.AgentID),
				log.Any("panic", r),
			)
		}
	}()
	fn(ev)
}
