package face

import (
	"time"

	"notifface/internal/datachannel"
)

// Event is the closed set of inputs the engine reacts to.
type Event interface{ faceEvent() }

// VisibilityChanged is sent when the watch face surface is shown or hidden.
type VisibilityChanged struct{ Visible bool }

// TimeTick is the once-a-minute clock tick.
type TimeTick struct{}

// PropertiesChanged carries the display capability flags. Sent once,
// before the first ambient transition.
type PropertiesChanged struct {
	LowBitAmbient    bool
	BurnInProtection bool
}

// AmbientModeChanged toggles the low-power mode.
type AmbientModeChanged struct{ Ambient bool }

// TimeZoneChanged signals that the device zone changed. A nil Location means
// "ask the zone source".
type TimeZoneChanged struct{ Location *time.Location }

// DataChanged is a channel change notification or the result of a pull.
type DataChanged struct{ Item datachannel.Item }

func (VisibilityChanged) faceEvent()  {}
func (TimeTick) faceEvent()           {}
func (PropertiesChanged) faceEvent()  {}
func (AmbientModeChanged) faceEvent() {}
func (TimeZoneChanged) faceEvent()    {}
func (DataChanged) faceEvent()        {}

// EventName is used for logs.
func EventName(ev Event) string {
	switch ev.(type) {
	case VisibilityChanged:
		return "visibility"
	case TimeTick:
		return "tick"
	case PropertiesChanged:
		return "properties"
	case AmbientModeChanged:
		return "ambient"
	case TimeZoneChanged:
		return "timezone"
	case DataChanged:
		return "data"
	default:
		return "unknown"
	}
}
