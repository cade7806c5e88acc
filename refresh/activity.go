package refresh

import "strings"

// Activity is a user interaction that may trigger a sliding refresh.
type Activity uint8

const (
	ActivityUnknown Activity = iota
	ActivityClick
	ActivityKeyDown
	ActivityMouseMove
	ActivityTouchStart
	ActivityFocus
	ActivityVisibilityChange
)

var activityNames = map[Activity]string{
	ActivityClick:            "click",
	ActivityKeyDown:          "keydown",
	ActivityMouseMove:        "mousemove",
	ActivityTouchStart:       "touchstart",
	ActivityFocus:            "focus",
	ActivityVisibilityChange: "visibilitychange",
}

func (a Activity) String() string {
	if name, ok := activityNames[a]; ok {
		return name
	}
	return "unknown"
}

// Qualifies reports whether a may trigger a refresh check.
func (a Activity) Qualifies() bool {
	_, ok := activityNames[a]
	return ok
}

// ParseActivity maps a DOM-style event name to an Activity.
func ParseActivity(name string) Activity {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range activityNames {
		if n == name {
			return a
		}
	}
	return ActivityUnknown
}
