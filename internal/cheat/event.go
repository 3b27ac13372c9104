package cheat

import "strings"

// Event is one tag of the suspicious-activity taxonomy.
type Event string

const (
	EventTabChanged        Event = "Tab changed / Window minimized"
	EventWindowBlur        Event = "Window lost focus"
	EventWindowFocus       Event = "Window focused"
	EventDevToolsOpened    Event = "DevTools opened"
	EventDevToolsHotkey    Event = "DevTools hotkey"
	EventFullscreenExited  Event = "Fullscreen exited"
	EventFullscreenEntered Event = "Fullscreen entered"
	EventCopy              Event = "Copy"
	EventPaste             Event = "Paste"
	EventCut               Event = "Cut"
	EventContextMenu       Event = "Context menu"
	EventOffline           Event = "Offline"
	EventOnline            Event = "Online"
	EventPageHide          Event = "Page hide"
	EventBeforeUnload      Event = "Before unload"
)

// Events lists every tag in taxonomy order.
var Events = []Event{
	EventTabChanged, EventWindowBlur, EventWindowFocus,
	EventDevToolsOpened, EventDevToolsHotkey,
	EventFullscreenExited, EventFullscreenEntered,
	EventCopy, EventPaste, EventCut, EventContextMenu,
	EventOffline, EventOnline, EventPageHide, EventBeforeUnload,
}

// Valid reports whether e belongs to the taxonomy.
func (e Event) Valid() bool {
	for _, known := range Events {
		if e == known {
			return true
		}
	}
	return false
}

// ─── Raw signals ────────────────────────────────────────────────────────────

// DOM event types forwarded by the quiz page.
const (
	SignalVisibilityChange = "visibilitychange"
	SignalBlur             = "blur"
	SignalFocus            = "focus"
	SignalFullscreenChange = "fullscreenchange"
	SignalWebkitFullscreen = "webkitfullscreenchange"
	SignalMozFullscreen    = "mozfullscreenchange"
	SignalMSFullscreen     = "MSFullscreenChange"
	SignalKeydown          = "keydown"
	SignalCopy             = "copy"
	SignalPaste            = "paste"
	SignalCut              = "cut"
	SignalContextMenu      = "contextmenu"
	SignalOffline          = "offline"
	SignalOnline           = "online"
	SignalPageHide         = "pagehide"
	SignalBeforeUnload     = "beforeunload"
	SignalResize           = "resize"
)

var signalTypes = map[string]bool{
	SignalVisibilityChange: true, SignalBlur: true, SignalFocus: true,
	SignalFullscreenChange: true, SignalWebkitFullscreen: true,
	SignalMozFullscreen: true, SignalMSFullscreen: true,
	SignalKeydown: true, SignalCopy: true, SignalPaste: true, SignalCut: true,
	SignalContextMenu: true, SignalOffline: true, SignalOnline: true,
	SignalPageHide: true, SignalBeforeUnload: true, SignalResize: true,
}

// IsSignal reports whether t is a DOM event type the monitor listens to.
func IsSignal(t string) bool { return signalTypes[t] }

// Signal is a browser event as observed by the page. Fullscreen accessors
// hold the element name, empty meaning null. Window sizes are only read from
// resize signals.
type Signal struct {
	Type string `json:"type" binding:"required"`

	Hidden bool `json:"hidden,omitempty"`

	FullscreenElement       string `json:"fullscreen_element,omitempty"`
	WebkitFullscreenElement string `json:"webkit_fullscreen_element,omitempty"`
	MozFullscreenElement    string `json:"moz_fullscreen_element,omitempty"`
	MSFullscreenElement     string `json:"ms_fullscreen_element,omitempty"`

	Key      string `json:"key,omitempty"`
	CtrlKey  bool   `json:"ctrl_key,omitempty"`
	MetaKey  bool   `json:"meta_key,omitempty"`
	ShiftKey bool   `json:"shift_key,omitempty"`

	OuterWidth  int `json:"outer_width,omitempty"`
	InnerWidth  int `json:"inner_width,omitempty"`
	OuterHeight int `json:"outer_height,omitempty"`
	InnerHeight int `json:"inner_height,omitempty"`

	PageURL string `json:"page_url,omitempty"`
}

// InFullscreen reports whether any vendor fullscreen accessor is non-null.
func (s Signal) InFullscreen() bool {
	return s.FullscreenElement != "" ||
		s.WebkitFullscreenElement != "" ||
		s.MozFullscreenElement != "" ||
		s.MSFullscreenElement != ""
}

// IsDevToolsHotkey matches F12 and Ctrl/Cmd+Shift+I.
func (s Signal) IsDevToolsHotkey() bool {
	if strings.EqualFold(s.Key, "F12") {
		return true
	}
	return (s.CtrlKey || s.MetaKey) && s.ShiftKey && strings.EqualFold(s.Key, "i")
}

// Classify maps a raw signal to its Event. Signals that are not suspicious
// (resize, ordinary keys, unknown types) return false.
func Classify(s Signal) (Event, bool) {
	switch s.Type {
	case SignalVisibilityChange:
		if s.Hidden {
			return EventTabChanged, true
		}
		return EventWindowFocus, true
	case SignalBlur:
		return EventWindowBlur, true
	case SignalFocus:
		return EventWindowFocus, true
	case SignalFullscreenChange, SignalWebkitFullscreen, SignalMozFullscreen, SignalMSFullscreen:
		if s.InFullscreen() {
			return EventFullscreenEntered, true
		}
		return EventFullscreenExited, true
	case SignalKeydown:
		if s.IsDevToolsHotkey() {
			return EventDevToolsHotkey, true
		}
		return "", false
	case SignalCopy:
		return EventCopy, true
	case SignalPaste:
		return EventPaste, true
	case SignalCut:
		return EventCut, true
	case SignalContextMenu:
		return EventContextMenu, true
	case SignalOffline:
		return EventOffline, true
	case SignalOnline:
		return EventOnline, true
	case SignalPageHide:
		return EventPageHide, true
	case SignalBeforeUnload:
		return EventBeforeUnload, true
	default:
		return "", false
	}
}

// fullscreenMethods is tried in order on document.documentElement.
var fullscreenMethods = []string{
	"requestFullscreen",
	"webkitRequestFullscreen",
	"mozRequestFullScreen",
	"msRequestFullscreen",
}

// FullscreenRequest returns the vendor method chain the page should try, in
// order, to enter fullscreen.
func FullscreenRequest() []string {
	out := make([]string, len(fullscreenMethods))
	copy(out, fullscreenMethods)
	return out
}
