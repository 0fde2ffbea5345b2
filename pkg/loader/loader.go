package loader

import "fmt"

// Kind classifies a class loader. Boot, platform and app are the fixed
// system loaders; classes they define are "builtin" and are matched in the
// archive by name. Every other loader instance is Custom and its classes
// are matched by content fingerprint instead.
type Kind int

const (
	Boot Kind = iota
	Platform
	App
	Custom
)

// IsBuiltin reports whether this is one of the fixed system loaders.
func (k Kind) IsBuiltin() bool {
	return k == Boot || k == Platform || k == App
}

func (k Kind) String() string {
	switch k {
	case Boot:
		return "boot"
	case Platform:
		return "platform"
	case App:
		return "app"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindFromName maps a classlist "loader:" attribute to a Kind.
func KindFromName(name string) (Kind, error) {
	switch name {
	case "boot":
		return Boot, nil
	case "platform":
		return Platform, nil
	case "app", "system":
		return App, nil
	default:
		return Custom, fmt.Errorf("unknown loader name %q", name)
	}
}

// Loader is an identity handle for a class loader instance. The archive
// subsystem never delegates loading through it; it only needs to know
// which loader defined (or is defining) a class.
type Loader struct {
	Name string
	Kind Kind
}

// The fixed system loaders.
var (
	BootLoader     = &Loader{Name: "boot", Kind: Boot}
	PlatformLoader = &Loader{Name: "platform", Kind: Platform}
	AppLoader      = &Loader{Name: "app", Kind: App}
)

// NewCustomLoader creates an identity handle for a user-defined loader.
func NewCustomLoader(name string) *Loader {
	return &Loader{Name: name, Kind: Custom}
}

// IsBuiltin reports whether the loader is one of the fixed system loaders.
// A nil loader is treated as the boot loader.
func (l *Loader) IsBuiltin() bool {
	return l == nil || l.Kind.IsBuiltin()
}
