package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"couple-sync-system/models"

	"github.com/gofiber/fiber/v2"
)

// PresenceService maintains the transient online/playing signal per
// (couple, user). Heartbeats go out on the presence bus; every instance's
// forwarder folds them into a local last-known view. Staleness is detected
// by the reader (missed-heartbeat timeout), not the publisher. Best-effort,
// eventually consistent — UI affordances and notification heuristics only.
type PresenceService struct {
	bus PresenceBus

	mu             sync.RWMutex
	view           map[string]map[string]models.PresenceState // coupleID → userID → last-known
	completedToday map[string]*models.GameSession              // coupleID → last completed session seen on the bus

	timeout time.Duration
}

// NewPresenceService wires the bus; a nil bus degrades to single-instance
// local-view mode (heartbeats still fold locally).
func NewPresenceService(bus PresenceBus) *PresenceService {
	timeoutSec := envInt("PRESENCE_TIMEOUT_SECONDS", 60)
	return &PresenceService{
		bus:            bus,
		view:           make(map[string]map[string]models.PresenceState),
		completedToday: make(map[string]*models.GameSession),
		timeout:        time.Duration(timeoutSec) * time.Second,
	}
}

// Start subscribes the forwarder so remote heartbeats land in the local view.
func (s *PresenceService) Start(ctx context.Context) error {
	if s.bus == nil {
		log.Println("⚠️  Presence bus not configured — running with local view only")
		return nil
	}
	return s.bus.StartForwarder(ctx, s.fold)
}

func (s *PresenceService) fold(m presenceMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m.Kind {
	case "presence":
		if m.State == nil {
			return
		}
		byUser, ok := s.view[m.State.CoupleID]
		if !ok {
			byUser = make(map[string]models.PresenceState)
			s.view[m.State.CoupleID] = byUser
		}
		byUser[m.State.UserID] = *m.State
	case "session_completed":
		if m.Session == nil {
			return
		}
		s.completedToday[m.Session.CoupleID] = m.Session
	}
}

// Heartbeat records the caller's own state and broadcasts it. Clients send
// one every 20–30s and on screen-focus changes; online ↔ playing transitions
// are driven by explicit screen entry/exit.
func (s *PresenceService) Heartbeat(coupleID, userID, status, screen string) error {
	switch status {
	case models.PresenceOnline, models.PresencePlaying, models.PresenceOffline:
	default:
		return fmt.Errorf("%w: unknown presence status %q", ErrInvalidOperation, status)
	}

	state := models.PresenceState{
		CoupleID:      coupleID,
		UserID:        userID,
		Status:        status,
		CurrentScreen: screen,
		LastSeenAt:    time.Now(),
	}

	// fold locally first so the same instance reads-its-own-write
	s.fold(presenceMessage{Kind: "presence", State: &state})

	if s.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.bus.Publish(ctx, presenceMessage{Kind: "presence", State: &state}); err != nil {
			// channel loss degrades to staleness, never breaks the request
			log.Printf("⚠️  Presence publish failed for %s: %v", userID, err)
		}
	}
	return nil
}

// PublishSessionCompleted pings subscribers that today's session finished so
// waiting partners learn the result with low latency. Lossy by design — the
// poll path remains correct without it.
func (s *PresenceService) PublishSessionCompleted(session *models.GameSession) {
	s.fold(presenceMessage{Kind: "session_completed", Session: session})
	if s.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, presenceMessage{Kind: "session_completed", Session: session}); err != nil {
		log.Printf("⚠️  Session event publish failed for %s: %v", session.ID, err)
	}
}

// PartnerPresence returns the last-known state of the partner facing userID,
// downgraded to offline when stale. Nil means the partner was never seen.
func (s *PresenceService) PartnerPresence(coupleID, userID string) *models.PresenceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser, ok := s.view[coupleID]
	if !ok {
		return nil
	}
	for id, state := range byUser {
		if id == userID {
			continue
		}
		out := state
		if out.Stale(time.Now(), s.timeout) {
			out.Status = models.PresenceOffline
			out.CurrentScreen = ""
		}
		return &out
	}
	return nil
}

// ReapStale drops view entries that have been silent for ten timeout
// windows and session events whose day has passed. The readers already
// filter both on access; this just bounds memory.
func (s *PresenceService) ReapStale() {
	cutoff := time.Now().Add(-10 * s.timeout)
	// keep UTC-yesterday and later: "today" under any day-boundary policy
	// falls inside that window, older dates are dead under every policy
	dayFloor := time.Now().UTC().AddDate(0, 0, -1).Format(DateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	for coupleID, byUser := range s.view {
		for userID, state := range byUser {
			if state.LastSeenAt.Before(cutoff) {
				delete(byUser, userID)
			}
		}
		if len(byUser) == 0 {
			delete(s.view, coupleID)
		}
	}
	for coupleID, session := range s.completedToday {
		if session.Date < dayFloor {
			delete(s.completedToday, coupleID)
		}
	}
}

// completedSessionFor returns the last session-completed event seen for the
// couple, if it happened on the given date.
func (s *PresenceService) completedSessionFor(coupleID, date string) *models.GameSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.completedToday[coupleID]
	if !ok || session.Date != date {
		return nil
	}
	return session
}

// StreamPresenceSSE streams partner presence changes and session-completed
// events for the authenticated user's couple.
func (s *PresenceService) StreamPresenceSSE(c *fiber.Ctx, couple *models.Couple, userID, today string) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	coupleID := couple.ID

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastPresence string
		var sessionSent bool

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				state := s.PartnerPresence(coupleID, userID)
				if state != nil {
					payload, _ := json.Marshal(state)
					if string(payload) != lastPresence {
						lastPresence = string(payload)
						fmt.Fprintf(w, "event: presence\ndata: %s\n\n", payload)
					}
				}

				if !sessionSent {
					if session := s.completedSessionFor(coupleID, today); session != nil {
						payload, _ := json.Marshal(session)
						fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
						sessionSent = true
					}
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
