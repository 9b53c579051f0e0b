package requestctl

import "sync"

// NotificationEntry tracks an outbound HMI notification the way the
// source's mobile_notification_list_ tracks the subset of requests that
// must never be rate-limited or tied to a correlation id: notifications
// fire-and-forget and are only ever bulk-cleared on app teardown.
type NotificationEntry struct {
	AppID      uint32
	FunctionID int32
}

// NotificationList is a separate, unbounded list of pending outbound
// notifications, kept apart from InfoSet because notifications carry no
// deadline and no correlation id to index by — only membership and
// bulk removal by app id matter. Grounded on the eventbus subscriber
// list's append/filter-remove shape.
type NotificationList struct {
	mu      sync.Mutex
	entries []NotificationEntry
}

// NewNotificationList creates an empty notification list.
func NewNotificationList() *NotificationList {
	return &NotificationList{}
}

// Add records a notification as pending.
func (l *NotificationList) Add(appID uint32, functionID int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, NotificationEntry{AppID: appID, FunctionID: functionID})
}

// RemoveByApp drops every pending notification for appID, returning how
// many were removed.
func (l *NotificationList) RemoveByApp(appID uint32) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if e.AppID == appID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return removed
}

// Len reports how many notifications are pending.
func (l *NotificationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
