package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/recordvault/internal/config"
)

// Event types
const (
	EventReportIngested = "report_ingested"
	EventGrantIssued    = "grant_issued"
	EventGrantRevoked   = "grant_revoked"
	EventTimelineRead   = "timeline_read"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Event is a single access-history entry.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OwnerID     string    `json:"owner_id,omitempty"`
	ReportID    string    `json:"report_id,omitempty"`
	GrantID     string    `json:"grant_id,omitempty"`
	ReportCount int       `json:"report_count,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	Recorded    time.Time `json:"recorded"`
}

// Logger records grant and report access history asynchronously.
type Logger struct {
	config  *config.AuditConfig
	events  map[string]*Event
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	eventCh chan *Event
}

// NewLogger creates a new audit logger
func NewLogger(cfg *config.AuditConfig) *Logger {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 1000
	}
	return &Logger{
		config:  cfg,
		events:  make(map[string]*Event),
		stopCh:  make(chan struct{}),
		eventCh: make(chan *Event, bufSize),
	}
}

// Start starts the audit logger
func (l *Logger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	go l.processEvents(ctx)
	return nil
}

// Stop stops the audit logger
func (l *Logger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.stopCh)
		l.running = false
	}
}

func (l *Logger) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case event := <-l.eventCh:
			l.mu.Lock()
			l.events[event.ID] = event
			l.mu.Unlock()
		}
	}
}

// Record stores an event. The event gets an id and timestamp here so callers
// only describe what happened.
func (l *Logger) Record(event *Event) *Event {
	if !l.config.Enabled {
		return nil
	}

	event.ID = uuid.New().String()
	event.Recorded = time.Now().UTC()

	l.eventCh <- event
	return event
}

// RecordIngest logs a report ingestion
func (l *Logger) RecordIngest(ownerID, reportID, ip string) *Event {
	return l.Record(&Event{
		Type:      EventReportIngested,
		OwnerID:   ownerID,
		ReportID:  reportID,
		Outcome:   OutcomeSuccess,
		IPAddress: ip,
	})
}

// RecordGrantIssued logs a grant issuance
func (l *Logger) RecordGrantIssued(ownerID, grantID string, scopeSize int, ip string) *Event {
	return l.Record(&Event{
		Type:        EventGrantIssued,
		OwnerID:     ownerID,
		GrantID:     grantID,
		ReportCount: scopeSize,
		Outcome:     OutcomeSuccess,
		IPAddress:   ip,
	})
}

// RecordGrantRevoked logs a grant revocation
func (l *Logger) RecordGrantRevoked(ownerID, grantID, ip string) *Event {
	return l.Record(&Event{
		Type:      EventGrantRevoked,
		OwnerID:   ownerID,
		GrantID:   grantID,
		Outcome:   OutcomeSuccess,
		IPAddress: ip,
	})
}

// RecordTimelineRead logs a viewer timeline access, granted or denied
func (l *Logger) RecordTimelineRead(ownerID, grantID string, count int, outcome, detail, ip string) *Event {
	return l.Record(&Event{
		Type:        EventTimelineRead,
		OwnerID:     ownerID,
		GrantID:     grantID,
		ReportCount: count,
		Outcome:     outcome,
		Detail:      detail,
		IPAddress:   ip,
	})
}

// GetEvent retrieves an event by ID
func (l *Logger) GetEvent(id string) (*Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	event, ok := l.events[id]
	return event, ok
}

// EventFilter defines filters for event queries
type EventFilter struct {
	Type      string
	Outcome   string
	OwnerID   string
	StartDate *time.Time
	EndDate   *time.Time
}

// GetEvents retrieves events matching a filter
func (l *Logger) GetEvents(filter EventFilter) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*Event
	for _, event := range l.events {
		if matchesFilter(event, filter) {
			results = append(results, event)
		}
	}
	return results
}

func matchesFilter(event *Event, filter EventFilter) bool {
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Outcome != "" && event.Outcome != filter.Outcome {
		return false
	}
	if filter.OwnerID != "" && event.OwnerID != filter.OwnerID {
		return false
	}
	if filter.StartDate != nil && event.Recorded.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && event.Recorded.After(*filter.EndDate) {
		return false
	}
	return true
}

// Stats contains audit statistics
type Stats struct {
	TotalEvents  int            `json:"total_events"`
	DeniedEvents int            `json:"denied_events"`
	ByType       map[string]int `json:"by_type"`
	ByOutcome    map[string]int `json:"by_outcome"`
}

// GetStats returns audit statistics
func (l *Logger) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{
		ByType:    make(map[string]int),
		ByOutcome: make(map[string]int),
	}

	for _, event := range l.events {
		stats.TotalEvents++
		stats.ByType[event.Type]++
		stats.ByOutcome[event.Outcome]++
		if event.Outcome == OutcomeDenied {
			stats.DeniedEvents++
		}
	}

	return stats
}
