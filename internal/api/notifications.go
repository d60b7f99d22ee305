package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lecturanotes/kalam/internal/middleware"
	"github.com/lecturanotes/kalam/internal/store"
)

type notificationView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Body       *string `json:"body,omitempty"`
	Type       *string `json:"type,omitempty"`
	ResourceID *string `json:"resourceId,omitempty"`
	Read       bool    `json:"read"`
	CreatedAt  string  `json:"createdAt"`
}

func toNotificationView(n store.Notification) notificationView {
	return notificationView{
		ID:         n.ID,
		Title:      n.Title,
		Body:       n.Body,
		Type:       n.Type,
		ResourceID: n.ResourceID,
		Read:       n.Read,
		CreatedAt:  n.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notifs, err := s.records.ListNotifications(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]notificationView, 0, len(notifs))
	for _, n := range notifs {
		views = append(views, toNotificationView(n))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "notifications": views})
}

func (s *Server) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.records.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) HandleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.records.MarkAllNotificationsRead(r.Context(), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.records.DeleteNotification(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
