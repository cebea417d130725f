package field

// Entity is a collectible on the play surface. X and Y are percentages of the
// surface; Size is a pixel diameter.
type Entity struct {
	ID           string  `json:"id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	Size         float64 `json:"size"`
	Rotation     float64 `json:"rotation"`
	SpawnDelay   float64 `json:"spawnDelay"`
	Variant      string  `json:"variant,omitempty"`
	VarianceSeed float64 `json:"varianceSeed"`
}

// Radius returns half the entity's pixel diameter.
func (e Entity) Radius() float64 {
	return e.Size / 2
}

// DeviceClass is a coarse viewport-size category.
type DeviceClass string

const (
	Mobile  DeviceClass = "mobile"
	Tablet  DeviceClass = "tablet"
	Desktop DeviceClass = "desktop"
)

// Breakpoints are the viewport widths separating device classes. Widths below
// Tablet are mobile; widths above Desktop are desktop.
type Breakpoints struct {
	Tablet  float64 `yaml:"tablet"`
	Desktop float64 `yaml:"desktop"`
}

// DefaultBreakpoints matches the usual 768/1024 css breakpoints.
var DefaultBreakpoints = Breakpoints{Tablet: 768, Desktop: 1024}

// Classify maps a viewport width to a device class.
func Classify(width float64, bp Breakpoints) DeviceClass {
	if bp.Tablet <= 0 && bp.Desktop <= 0 {
		bp = DefaultBreakpoints
	}
	switch {
	case width < bp.Tablet:
		return Mobile
	case width <= bp.Desktop:
		return Tablet
	default:
		return Desktop
	}
}

// ParseDeviceClass returns the class named by s, or false when s is unknown.
func ParseDeviceClass(s string) (DeviceClass, bool) {
	switch DeviceClass(s) {
	case Mobile, Tablet, Desktop:
		return DeviceClass(s), true
	}
	return "", false
}
