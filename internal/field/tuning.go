package field

// Profile holds the per-device sizing rules. Margins are pixels reserved for
// the HUD and are excluded from the grid.
type Profile struct {
	MinSize      float64
	MaxSize      float64
	MarginTop    float64
	MarginBottom float64
	MarginSide   float64
}

var profiles = map[DeviceClass]Profile{
	Mobile:  {MinSize: 32, MaxSize: 44, MarginTop: 72, MarginBottom: 16, MarginSide: 8},
	Tablet:  {MinSize: 30, MaxSize: 42, MarginTop: 88, MarginBottom: 20, MarginSide: 16},
	Desktop: {MinSize: 28, MaxSize: 38, MarginTop: 104, MarginBottom: 24, MarginSide: 24},
}

// ProfileFor returns the sizing profile for a device class, falling back to desktop.
func ProfileFor(d DeviceClass) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[Desktop]
}

const (
	DefaultDensity = 1.5
	DefaultJitter  = 0.7
	MinJitter      = 0.7
	MaxJitter      = 1.5
	MaxBleed       = 5.0
	DefaultDepth   = 100.0
	MaxDepth       = 200.0
	MaxSpawnDelay  = 2.0 // seconds
)
