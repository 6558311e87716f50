package manifest

// BindingMode is the CLI override for the [binding] gate.
type BindingMode uint8

const (
	// BindingAuto follows [binding].enabled from the manifest.
	BindingAuto BindingMode = iota
	// BindingOn builds binding-gated libraries regardless of the manifest.
	BindingOn
	// BindingOff skips binding-gated libraries regardless of the manifest.
	BindingOff
)

// ParseBindingMode maps the --binding flag value onto the enum.
func ParseBindingMode(s string) (BindingMode, bool) {
	switch s {
	case "", "auto":
		return BindingAuto, true
	case "on":
		return BindingOn, true
	case "off":
		return BindingOff, true
	default:
		return BindingAuto, false
	}
}

func (b BindingMode) String() string {
	switch b {
	case BindingAuto:
		return "auto"
	case BindingOn:
		return "on"
	case BindingOff:
		return "off"
	default:
		return "auto"
	}
}

// ActiveLibraries applies the binding gate and returns the libraries the
// build graph is constructed from. Gated libraries are dropped when the
// gate is off; [binding].only restricts the build to gated libraries.
func (m *Manifest) ActiveLibraries(mode BindingMode) []Library {
	enabled := m.Binding.Enabled
	switch mode {
	case BindingOn:
		enabled = true
	case BindingOff:
		enabled = false
	case BindingAuto:
	}

	active := make([]Library, 0, len(m.Libraries))
	for _, lib := range m.Libraries {
		if lib.Binding && !enabled {
			continue
		}
		if m.Binding.Only && !lib.Binding {
			continue
		}
		active = append(active, lib)
	}
	return active
}
