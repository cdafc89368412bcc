package host

// Event is a notification-listener callback. The set is closed.
type Event interface{ hostEvent() }

// ListenerConnected is sent once the listener is bound to the host.
type ListenerConnected struct{}

// NotificationPosted is sent when a notification is added or updated.
type NotificationPosted struct{ Key string }

// NotificationRemoved is sent when a notification goes away.
type NotificationRemoved struct{ Key string }

func (ListenerConnected) hostEvent()   {}
func (NotificationPosted) hostEvent()  {}
func (NotificationRemoved) hostEvent() {}

// Source returns the full active notification set.
type Source interface {
	Snapshot() Snapshot
}
