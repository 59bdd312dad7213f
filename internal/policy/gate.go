package policy

import "github.com/MikroWizard/mikroman/internal/routeros"

// capGate names a capability (with its negation) that only a range of
// firmware versions understands.
type capGate struct {
	name string
	// drop when the version compares this way against the boundary
	boundary routeros.Version
	dropWhen int // sign of Compare(boundary) that triggers the drop
}

// Firmware capability gates: pushing an unknown policy name makes the
// device reject the whole group, so unsupported ones are stripped first.
var capGates = []capGate{
	{name: "dude", boundary: routeros.MustVersion("7.6"), dropWhen: 1},
	{name: "tikapp", boundary: routeros.MustVersion("7.2"), dropWhen: 1},
	{name: "rest-api", boundary: routeros.MustVersion("7.1"), dropWhen: -1},
}

// GateCapabilities removes capabilities the firmware does not support.
// The input order is preserved.
func GateCapabilities(version routeros.Version, caps []string) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if dropCapability(version, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func dropCapability(version routeros.Version, cap string) bool {
	name := cap
	if len(name) > 0 && name[0] == '!' {
		name = name[1:]
	}
	for _, g := range capGates {
		if g.name == name {
			return version.Compare(g.boundary) == g.dropWhen
		}
	}
	return false
}
