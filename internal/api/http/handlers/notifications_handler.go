package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/noc-kit/faultdesk/internal/events"
	apperrors "github.com/noc-kit/faultdesk/pkg/util"
)

// NotificationsHandler manages subscriber sessions over HTTP. A session is
// created on connect, holds its own read/unread bookkeeping, and dies with
// the connection (or an explicit disconnect); nothing here is durable.
type NotificationsHandler struct {
	hub *events.Hub

	mu       sync.Mutex
	sessions map[string]*events.Session
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(hub *events.Hub) *NotificationsHandler {
	return &NotificationsHandler{
		hub:      hub,
		sessions: make(map[string]*events.Session),
	}
}

// Connect POST /notifications/sessions. Subscribes from "now" and primes the
// session once from the bounded recent buffer.
func (h *NotificationsHandler) Connect(c *fiber.Ctx) error {
	session := h.hub.Subscribe()
	recent := h.hub.Recent()
	session.Prime(recent)

	h.mu.Lock()
	h.sessions[session.ID()] = session
	h.mu.Unlock()

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"session_id":   session.ID(),
			"recent":       session.Annotate(recent),
			"unread_count": session.UnreadCount(),
		},
	})
}

// Recent GET /notifications/sessions/:id. Re-reading the buffer never resets
// read marks or double-counts.
func (h *NotificationsHandler) Recent(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	recent := h.hub.Recent()
	session.Prime(recent)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"recent":       session.Annotate(recent),
			"unread_count": session.UnreadCount(),
		},
	})
}

// MarkRead POST /notifications/sessions/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req struct {
		EventID string `json:"event_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.EventID == "" {
		return apperrors.NewValidationError("event_id required", nil)
	}
	session.MarkRead(req.EventID)
	return c.JSON(fiber.Map{"data": fiber.Map{"unread_count": session.UnreadCount()}})
}

// MarkAllRead POST /notifications/sessions/:id/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	session.MarkAllRead()
	return c.JSON(fiber.Map{"data": fiber.Map{"unread_count": 0}})
}

// Disconnect DELETE /notifications/sessions/:id.
func (h *NotificationsHandler) Disconnect(c *fiber.Ctx) error {
	id := c.Params("id")
	h.mu.Lock()
	session, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		session.Close()
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stream GET /notifications/sessions/:id/stream. Server-sent events in
// publish order for this session's queue.
func (h *NotificationsHandler) Stream(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for event := range session.Events() {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

func (h *NotificationsHandler) session(c *fiber.Ctx) (*events.Session, error) {
	id := c.Params("id")
	h.mu.Lock()
	session, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFound("session", map[string]any{"session_id": id})
	}
	return session, nil
}
