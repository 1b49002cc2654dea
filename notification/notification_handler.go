package notification

import (
	"encoding/json"
	"log"
	"net/http"
)

// Handler implements HTTP handlers for notification API endpoints
type Handler struct {
	manager *Manager
}

// NewHandler creates a new notification handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager: manager,
	}
}

// RegisterRoutes registers notification routes with the provided HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// GET /api/notifications - List all notifications
	// GET /api/notifications?type=order_executed - List notifications by type
	mux.HandleFunc("/api/notifications", h.handleNotifications)

	// POST /api/notifications/read-all - Mark all notifications as read
	mux.HandleFunc("/api/notifications/read-all", h.handleReadAll)
}

// handleNotifications handles GET requests to /api/notifications
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	// Set common headers
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notifications := h.manager.Notifications()
	if notifType := r.URL.Query().Get("type"); notifType != "" {
		var filtered []Notification
		for _, notification := range notifications {
			if notification.Type == NotificationType(notifType) {
				filtered = append(filtered, notification)
			}
		}
		notifications = filtered
	}

	if err := json.NewEncoder(w).Encode(notifications); err != nil {
		http.Error(w, "Failed to encode notifications", http.StatusInternalServerError)
		log.Printf("Error encoding notifications: %v", err)
	}
}

// handleReadAll handles POST requests to /api/notifications/read-all
func (h *Handler) handleReadAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.manager.MarkAllRead()
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "All notifications marked as read",
	}); err != nil {
		log.Printf("Error encoding success response: %v", err)
	}
}
