package bridge

// Device is the emulation profile applied for a content mode
type Device struct {
	UserAgent string
	Width     int
	Height    int
	Mobile    bool
}

var (
	// MobileDevice emulates a phone sized Safari
	MobileDevice = Device{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		Width:     400,
		Height:    1000,
		Mobile:    true,
	}

	// DesktopDevice emulates desktop Safari on macOS
	DesktopDevice = Device{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		Width:     1500,
		Height:    1000,
	}
)

// DeviceFor returns the profile for the requested mode
func DeviceFor(mobile bool) Device {
	if mobile {
		return MobileDevice
	}
	return DesktopDevice
}
