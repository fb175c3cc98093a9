// Package sse provides Server-Sent Events support for the admin live feed.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"outreach_backend/platform/logger"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventLeadCreated       EventType = "lead_created"
	EventLeadStatusChanged EventType = "lead_status_changed"
	EventLeadEscalated     EventType = "lead_escalated"
	EventCycleCompleted    EventType = "cycle_completed"
)

const keepAliveInterval = 25 * time.Second

// Event is one frame of the feed. ID is the bus event id and lets
// EventSource clients resume with Last-Event-ID.
type Event struct {
	ID      string      `json:"id,omitempty"`
	Type    EventType   `json:"type"`
	Lead    string      `json:"lead,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	subject string
	events  chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[string][]*client // subject -> clients
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		clients: make(map[string][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.subject] = append(s.clients[c.subject], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.subject]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.subject] = append(clients[:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.subject]) == 0 {
		delete(s.clients, c.subject)
	}
}

// Clients reports the number of open connections.
func (s *Service) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, cs := range s.clients {
		n += len(cs)
	}
	return n
}

// Broadcast sends an event to every connected admin. Full buffers drop the event.
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for subject, clients := range s.clients {
		for _, c := range clients {
			select {
			case c.events <- event:
				delivered++
			default:
				s.log.Warn("sse buffer full", "subject", subject, "type", string(event.Type))
			}
		}
	}
	s.log.Debug("sse event broadcast", "type", string(event.Type), "clients", delivered)
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getSubject func(*gin.Context) (string, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := getSubject(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{subject: subject, events: make(chan Event, 32)}
		s.addClient(cl)
		defer s.removeClient(cl)

		writeFrame(c.Writer, "", "connected", gin.H{"subject": subject})
		s.log.Info("sse client connected", "subject", subject)

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Info("sse client disconnected", "subject", subject)
				return
			case <-keepAlive.C:
				_, _ = io.WriteString(c.Writer, ": keepalive\n\n")
				c.Writer.Flush()
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				writeFrame(c.Writer, event.ID, string(event.Type), event)
			}
		}
	}
}

func writeFrame(w gin.ResponseWriter, id, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	w.Flush()
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[string][]*client)
}
