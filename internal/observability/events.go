// Package observability provides logging, tracing, and event timeline capabilities.
// This file implements the event timeline for debugging and replaying dispatches.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventType categorizes events for filtering and display.
type EventType string

const (
	EventTypeDispatchStart   EventType = "dispatch.start"
	EventTypeDispatchEnd     EventType = "dispatch.end"
	EventTypeDispatchError   EventType = "dispatch.error"
	EventTypeDispatchTimeout EventType = "dispatch.timeout"
	EventTypeStageStart      EventType = "task.stage.start"
	EventTypeStageEnd        EventType = "task.stage.end"
	EventTypeStageError      EventType = "task.stage.error"
	EventTypeStageRetry      EventType = "task.stage.retry"
	EventTypePeerConnect     EventType = "peer.connect"
	EventTypePeerDisconnect  EventType = "peer.disconnect"
	EventTypeCustom          EventType = "custom"
)

// Event represents a single event in the timeline.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	TraceID     string                 `json:"trace_id,omitempty"`
	CommandType string                 `json:"command_type,omitempty"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Duration    time.Duration          `json:"duration_ns,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ParentID    string                 `json:"parent_id,omitempty"`
	SpanTraceID string                 `json:"span_trace_id,omitempty"`
	SpanID      string                 `json:"span_id,omitempty"`
}

// EventStore stores and retrieves events for debugging.
type EventStore interface {
	// Record stores an event.
	Record(event *Event) error

	// GetByTraceID returns all events for a dispatch trace_id, sorted by timestamp.
	GetByTraceID(traceID string) ([]*Event, error)

	// GetByTimeRange returns events within a time range.
	GetByTimeRange(start, end time.Time) ([]*Event, error)

	// GetByType returns events of a specific type.
	GetByType(eventType EventType, limit int) ([]*Event, error)

	// Get returns a single event by ID.
	Get(id string) (*Event, error)

	// Delete removes events older than the given duration.
	Delete(olderThan time.Duration) (int, error)
}

// MemoryEventStore is an in-memory implementation of EventStore.
type MemoryEventStore struct {
	mu        sync.RWMutex
	events    map[string]*Event
	byTraceID map[string][]string // traceID -> eventIDs
	maxSize   int
}

// NewMemoryEventStore creates a new in-memory event store.
func NewMemoryEventStore(maxSize int) *MemoryEventStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryEventStore{
		events:    make(map[string]*Event),
		byTraceID: make(map[string][]string),
		maxSize:   maxSize,
	}
}

func (s *MemoryEventStore) Record(event *Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxSize {
		s.evictOldest()
	}

	s.events[event.ID] = event

	if event.TraceID != "" {
		s.byTraceID[event.TraceID] = append(s.byTraceID[event.TraceID], event.ID)
	}

	return nil
}

func (s *MemoryEventStore) GetByTraceID(traceID string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byTraceID[traceID]
	events := make([]*Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.events[id]; ok {
			events = append(events, e)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, nil
}

func (s *MemoryEventStore) GetByTimeRange(start, end time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*Event
	for _, e := range s.events {
		if (e.Timestamp.Equal(start) || e.Timestamp.After(start)) &&
			(e.Timestamp.Equal(end) || e.Timestamp.Before(end)) {
			events = append(events, e)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, nil
}

func (s *MemoryEventStore) GetByType(eventType EventType, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*Event
	for _, e := range s.events {
		if e.Type == eventType {
			events = append(events, e)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp) // Most recent first
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (s *MemoryEventStore) Get(id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	return e, nil
}

func (s *MemoryEventStore) Delete(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0

	for id, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			delete(s.events, id)
			deleted++
		}
	}

	for traceID, ids := range s.byTraceID {
		var remaining []string
		for _, id := range ids {
			if _, ok := s.events[id]; ok {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			delete(s.byTraceID, traceID)
		} else {
			s.byTraceID[traceID] = remaining
		}
	}

	return deleted, nil
}

func (s *MemoryEventStore) evictOldest() {
	toRemove := s.maxSize / 10
	if toRemove < 1 {
		toRemove = 1
	}

	var events []*Event
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	for i := 0; i < toRemove && i < len(events); i++ {
		delete(s.events, events[i].ID)
	}
}

// EventRecorder provides a convenient API for recording events.
type EventRecorder struct {
	store  EventStore
	logger *Logger
}

// NewEventRecorder creates a new event recorder.
func NewEventRecorder(store EventStore, logger *Logger) *EventRecorder {
	return &EventRecorder{
		store:  store,
		logger: logger,
	}
}

// Record records an event, extracting correlation IDs from context.
func (r *EventRecorder) Record(ctx context.Context, eventType EventType, name string, data map[string]interface{}) error {
	event := &Event{
		ID:          generateEventID(),
		Type:        eventType,
		Timestamp:   time.Now(),
		TraceID:     GetTraceID(ctx),
		CommandType: GetCommandType(ctx),
		Name:        name,
		Data:        data,
		SpanTraceID: ActiveTraceID(ctx),
		SpanID:      ActiveSpanID(ctx),
	}

	if r.logger != nil {
		r.logger.Debug(ctx, "event recorded",
			"event_type", string(eventType),
			"event_name", name,
			"event_id", event.ID,
		)
	}

	return r.store.Record(event)
}

// RecordError records an error event.
func (r *EventRecorder) RecordError(ctx context.Context, eventType EventType, name string, err error, data map[string]interface{}) error {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["error"] = err.Error()

	event := &Event{
		ID:          generateEventID(),
		Type:        eventType,
		Timestamp:   time.Now(),
		TraceID:     GetTraceID(ctx),
		CommandType: GetCommandType(ctx),
		Name:        name,
		Data:        data,
		Error:       err.Error(),
		SpanTraceID: ActiveTraceID(ctx),
		SpanID:      ActiveSpanID(ctx),
	}

	if r.logger != nil {
		r.logger.Error(ctx, "error event recorded",
			"event_type", string(eventType),
			"event_name", name,
			"event_id", event.ID,
			"error", err,
		)
	}

	return r.store.Record(event)
}

// RecordDispatchStart records the start of an outbound script dispatch.
func (r *EventRecorder) RecordDispatchStart(ctx context.Context, commandType string, script string) error {
	data := map[string]interface{}{
		"command_type": commandType,
	}
	if b, err := json.Marshal(script); err == nil {
		data["script_len"] = len(b)
	}
	return r.Record(ctx, EventTypeDispatchStart, commandType, data)
}

// RecordDispatchEnd records the end of an outbound script dispatch.
func (r *EventRecorder) RecordDispatchEnd(ctx context.Context, commandType string, duration time.Duration, err error) error {
	data := map[string]interface{}{
		"command_type": commandType,
		"duration_ms":  duration.Milliseconds(),
	}
	if err != nil {
		return r.RecordError(ctx, EventTypeDispatchError, commandType, err, data)
	}
	return r.Record(ctx, EventTypeDispatchEnd, commandType, data)
}

// RecordStageStart records the start of a Task Envelope Runtime stage.
func (r *EventRecorder) RecordStageStart(ctx context.Context, stage string) error {
	return r.Record(ctx, EventTypeStageStart, stage, map[string]interface{}{"stage": stage})
}

// RecordStageEnd records the end of a Task Envelope Runtime stage.
func (r *EventRecorder) RecordStageEnd(ctx context.Context, stage string, duration time.Duration, err error) error {
	data := map[string]interface{}{
		"stage":       stage,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		return r.RecordError(ctx, EventTypeStageError, stage, err, data)
	}
	return r.Record(ctx, EventTypeStageEnd, stage, data)
}

// RecordStageRetry records a stage retry attempt.
func (r *EventRecorder) RecordStageRetry(ctx context.Context, stage string, attempt int) error {
	return r.Record(ctx, EventTypeStageRetry, stage, map[string]interface{}{
		"stage":   stage,
		"attempt": attempt,
	})
}

// RecordPeerEvent records a peer connect/disconnect transition.
func (r *EventRecorder) RecordPeerEvent(ctx context.Context, eventType EventType, data map[string]interface{}) error {
	return r.Record(ctx, eventType, string(eventType), data)
}

// Timeline represents a sequence of events for display.
type Timeline struct {
	TraceID   string           `json:"trace_id"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Events    []*Event         `json:"events"`
	Summary   *TimelineSummary `json:"summary"`
}

// TimelineSummary provides aggregate statistics for a timeline.
type TimelineSummary struct {
	TotalEvents   int           `json:"total_events"`
	ErrorCount    int           `json:"error_count"`
	Dispatches    int           `json:"dispatches"`
	StageRetries  int           `json:"stage_retries"`
	PeerEvents    int           `json:"peer_events"`
	TotalDuration time.Duration `json:"total_duration"`
}

// BuildTimeline creates a timeline from events sharing a trace_id.
func BuildTimeline(events []*Event) *Timeline {
	if len(events) == 0 {
		return &Timeline{Summary: &TimelineSummary{}}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	timeline := &Timeline{
		Events:    events,
		StartTime: events[0].Timestamp,
		EndTime:   events[len(events)-1].Timestamp,
		Duration:  events[len(events)-1].Timestamp.Sub(events[0].Timestamp),
		Summary:   &TimelineSummary{TotalEvents: len(events)},
	}

	for _, e := range events {
		if e.TraceID != "" && timeline.TraceID == "" {
			timeline.TraceID = e.TraceID
			break
		}
	}

	for _, e := range events {
		if e.Error != "" {
			timeline.Summary.ErrorCount++
		}
		switch e.Type {
		case EventTypeDispatchStart:
			timeline.Summary.Dispatches++
		case EventTypeStageRetry:
			timeline.Summary.StageRetries++
		case EventTypePeerConnect, EventTypePeerDisconnect:
			timeline.Summary.PeerEvents++
		}
		timeline.Summary.TotalDuration += e.Duration
	}

	return timeline
}

// FormatTimeline formats a timeline for display.
func FormatTimeline(timeline *Timeline) string {
	if timeline == nil || len(timeline.Events) == 0 {
		return "No events found"
	}

	var result string
	result += fmt.Sprintf("=== Timeline for trace_id: %s ===\n", timeline.TraceID)
	result += fmt.Sprintf("Duration: %v\n", timeline.Duration)
	result += fmt.Sprintf("Events: %d (Errors: %d)\n", timeline.Summary.TotalEvents, timeline.Summary.ErrorCount)
	result += fmt.Sprintf("Dispatches: %d, Stage retries: %d, Peer events: %d\n\n",
		timeline.Summary.Dispatches, timeline.Summary.StageRetries, timeline.Summary.PeerEvents)

	for i, e := range timeline.Events {
		prefix := "├─"
		if i == len(timeline.Events)-1 {
			prefix = "└─"
		}

		timestamp := e.Timestamp.Format("15:04:05.000")
		errorMark := ""
		if e.Error != "" {
			errorMark = " [error]"
		}

		result += fmt.Sprintf("%s [%s] %s: %s%s\n", prefix, timestamp, e.Type, e.Name, errorMark)

		if e.Duration > 0 {
			result += fmt.Sprintf("   Duration: %v\n", e.Duration)
		}
		if e.Error != "" {
			result += fmt.Sprintf("   Error: %s\n", e.Error)
		}
	}

	return result
}

var eventIDCounter int64
var eventIDMu sync.Mutex

func generateEventID() string {
	eventIDMu.Lock()
	defer eventIDMu.Unlock()
	eventIDCounter++
	return fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), eventIDCounter)
}
