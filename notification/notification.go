package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/wealthdeck/trading-engine/types"
)

// NotificationPriority defines the priority level of a notification
type NotificationPriority string

const (
	// Priority levels
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	// Notification types
	TypeOrderExecuted NotificationType = "order_executed"
	TypeOrderFailed   NotificationType = "order_failed"
	TypeRiskAlert     NotificationType = "risk_alert"
	TypeSystemAlert   NotificationType = "system_alert"
)

// Notification represents a notification to be displayed on the dashboard
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  NotificationPriority   `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
	Read      bool                   `json:"read"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager keeps a bounded, newest-first list of notifications and
// broadcasts each new one to an optional stream hub
type Manager struct {
	notifications    []Notification
	maxNotifications int
	hub              *Hub
	seq              int
	mutex            sync.RWMutex
}

// NewManager creates a notification manager. hub may be nil when no
// push channel is wired.
func NewManager(maxNotifications int, hub *Hub) *Manager {
	return &Manager{
		notifications:    []Notification{},
		maxNotifications: maxNotifications,
		hub:              hub,
	}
}

// Add stores a notification and pushes it to connected dashboard
// clients
func (m *Manager) Add(notification Notification) Notification {
	m.mutex.Lock()

	m.seq++
	notification.ID = fmt.Sprintf("notif-%d", m.seq)
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	// Add to the beginning of the list for reverse chronological order
	m.notifications = append([]Notification{notification}, m.notifications...)

	// Trim if exceeding max notifications
	if len(m.notifications) > m.maxNotifications {
		m.notifications = m.notifications[:m.maxNotifications]
	}
	m.mutex.Unlock()

	if m.hub != nil {
		m.hub.BroadcastJSON(notification)
	}
	return notification
}

// Notifications returns a copy of all notifications, newest first
func (m *Manager) Notifications() []Notification {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	notifications := make([]Notification, len(m.notifications))
	copy(notifications, m.notifications)
	return notifications
}

// MarkAllRead marks every stored notification as read
func (m *Manager) MarkAllRead() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := range m.notifications {
		m.notifications[i].Read = true
	}
}

// FromTradeRecord builds the notification for a resolved trade record
func FromTradeRecord(record types.TradeRecord) Notification {
	source := "manual"
	if record.Auto {
		source = "automatic"
	}

	if record.Status == types.StatusFailed {
		return Notification{
			Type:     TypeOrderFailed,
			Title:    fmt.Sprintf("Order failed: %s %s", record.Side, record.Symbol),
			Message:  fmt.Sprintf("The %s %s order for %.4f %s failed: %s", source, record.Side, record.Quantity, record.Symbol, record.Error),
			Priority: PriorityHigh,
			Metadata: map[string]interface{}{"symbol": record.Symbol, "trade_id": record.ID},
		}
	}
	return Notification{
		Type:     TypeOrderExecuted,
		Title:    fmt.Sprintf("Order executed: %s %s", record.Side, record.Symbol),
		Message:  fmt.Sprintf("Filled %s %s order for %.4f %s at %.2f", source, record.Side, record.Quantity, record.Symbol, record.FillPrice),
		Priority: PriorityMedium,
		Metadata: map[string]interface{}{"symbol": record.Symbol, "trade_id": record.ID},
	}
}

// CreateSystemAlert builds a system alert notification
func CreateSystemAlert(title, message string) Notification {
	return Notification{
		Type:     TypeSystemAlert,
		Title:    title,
		Message:  message,
		Priority: PriorityLow,
	}
}

// CreateRiskAlert builds a high-priority risk alert notification
func CreateRiskAlert(title, message string) Notification {
	return Notification{
		Type:     TypeRiskAlert,
		Title:    title,
		Message:  message,
		Priority: PriorityHigh,
	}
}
