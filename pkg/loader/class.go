package loader

import (
	"strings"

	"github.com/jvmshare/cds/pkg/classfile"
)

// Category says how a class is identified in the shared archive: builtin
// classes by (loader identity, name), unregistered classes by content
// fingerprint. A class's category never changes between dump time and
// run time.
type Category int

const (
	Builtin Category = iota
	Unregistered
)

func (c Category) String() string {
	if c == Unregistered {
		return "unregistered"
	}
	return "builtin"
}

// Class is the in-memory class metadata the archive subsystem works with.
// It is the narrow projection of full class metadata that dump-time graph
// building and run-time lookup need: identity, declared hierarchy, and a
// handful of state flags.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Loader     *Loader

	// ClasspathIndex is the index of the classpath entry the class was
	// loaded from. Meaningful only for builtin classes; unregistered
	// classes carry the explicit flag below instead of a sentinel index.
	ClasspathIndex int
	IsUnregistered bool

	Fingerprint classfile.Fingerprint
	ModuleName  string

	IsInterface        bool
	Hidden             bool
	FailedVerification bool
	Redefined          bool

	// ProtectionDomain is attached on first real use at run time.
	ProtectionDomain *ProtectionDomain
}

// CategoryOf returns the archive category of a class.
func CategoryOf(c *Class) Category {
	if c.IsUnregistered {
		return Unregistered
	}
	return Builtin
}

// HasSuper reports whether target appears on c's superclass chain
// (not including c itself).
func (c *Class) HasSuper(target string) bool {
	for s := c.Super; s != nil; s = s.Super {
		if s.Name == target {
			return true
		}
	}
	return false
}

// Implements reports whether the class or any of its supertypes declares
// the named interface.
func (c *Class) Implements(target string) bool {
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if i.Name == target || i.Implements(target) {
				return true
			}
		}
	}
	return false
}

// PackageName returns the slash-separated package of a class name, or ""
// for the default package.
func PackageName(className string) string {
	idx := strings.LastIndexByte(className, '/')
	if idx < 0 {
		return ""
	}
	return className[:idx]
}
