package schemas

// -- Platform & Device Emulation --

// Platform selects the interaction model a session drives the environment with.
type Platform string

const (
	PlatformMobile  Platform = "mobile"
	PlatformDesktop Platform = "desktop"
)

// ParsePlatform normalizes a user supplied platform name.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformMobile, "":
		return PlatformMobile, nil
	case PlatformDesktop:
		return PlatformDesktop, nil
	}
	return "", NewCommandError("parse-platform", "invalid platform %q: use 'mobile' or 'desktop'", s)
}

// DeviceProfile describes the browsing context a driver has to create.
type DeviceProfile struct {
	Platform          Platform `json:"platform"`
	UserAgent         string   `json:"userAgent"`
	Width             int64    `json:"width"`
	Height            int64    `json:"height"`
	DeviceScaleFactor float64  `json:"deviceScaleFactor"`
	Mobile            bool     `json:"mobile"`
	Touch             bool     `json:"touch"`
	Headless          bool     `json:"headless"`
	Locale            string   `json:"locale"`
}

// MobileProfile emulates an iPhone 12 class device.
var MobileProfile = DeviceProfile{
	Platform:          PlatformMobile,
	UserAgent:         "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
	Width:             390,
	Height:            844,
	DeviceScaleFactor: 3.0,
	Mobile:            true,
	Touch:             true,
	Headless:          true,
	Locale:            "en-US",
}

// DesktopProfile is a plain laptop-sized Chrome window.
var DesktopProfile = DeviceProfile{
	Platform:          PlatformDesktop,
	UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	Width:             1280,
	Height:            800,
	DeviceScaleFactor: 1.0,
	Headless:          true,
	Locale:            "en-US",
}

// ProfileFor returns a copy of the default profile for a platform.
func ProfileFor(p Platform) DeviceProfile {
	if p == PlatformDesktop {
		return DesktopProfile
	}
	return MobileProfile
}

// Clip is a screenshot sub-region in CSS pixels.
type Clip struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// -- Low-Level Input Schemas --

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEventData encapsulates all data for a mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
	DeltaX     float64        `json:"deltaX"`
	DeltaY     float64        `json:"deltaY"`
}

// TouchEventType mirrors the CDP Input.dispatchTouchEvent type names.
type TouchEventType string

const (
	TouchStart  TouchEventType = "touchStart"
	TouchMove   TouchEventType = "touchMove"
	TouchEnd    TouchEventType = "touchEnd"
	TouchCancel TouchEventType = "touchCancel"
)

// TouchPoint is a single finger position in viewport CSS pixels.
type TouchPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TouchEventData is one touch primitive. TouchEnd and TouchCancel carry no points.
type TouchEventData struct {
	Type   TouchEventType `json:"type"`
	Points []TouchPoint   `json:"touchPoints"`
}
