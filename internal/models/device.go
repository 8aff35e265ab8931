package models

// DeviceInfo describes an attached device as reported to the control plane.
type DeviceInfo struct {
	Serial       string `json:"serial"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Release      string `json:"release,omitempty"`   // Android version, e.g. "13"
	APILevel     int    `json:"api_level,omitempty"` // SDK int
	State        string `json:"state,omitempty"`
}

// BatteryState is reported by the on-device service component.
type BatteryState struct {
	Level       int     `json:"level"`
	Charging    bool    `json:"charging"`
	Temperature float64 `json:"temperature,omitempty"`
}
