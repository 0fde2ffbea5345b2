package cds

import (
	"github.com/jvmshare/cds/pkg/loader"
)

// jfrEventBase is the ancestor of classes generated for flight-recorder
// event instrumentation. Such classes are re-generated at run time and
// must not be archived.
const jfrEventBase = "jdk/jfr/Event"

func isEventInstrumentationClass(c *loader.Class) bool {
	return c.Name == jfrEventBase || c.HasSuper(jfrEventBase)
}

// ShouldBeExcluded evaluates the fixed exclusion policy for one dump-time
// candidate. It returns a human-readable reason when the class is unsafe
// to archive. Exclusion is never fatal to the dump: the class is simply
// left out.
func (d *Dumper) ShouldBeExcluded(c *loader.Class) (string, bool) {
	switch {
	case c.Hidden:
		return "hidden class", true
	case c.FailedVerification:
		return "failed verification at dump time", true
	case c.Redefined:
		return "class has been redefined", true
	case isEventInstrumentationClass(c):
		return "JFR event class", true
	}

	if c.IsUnregistered {
		if c.Fingerprint.IsZero() {
			return "no class bytes recorded for fingerprinting", true
		}
		info := d.table.Get(c)
		if info != nil && (!info.SuperResolved || !info.InterfacesResolved) {
			return "supertype graph was never resolved", true
		}
		return "", false
	}

	if c.Loader != nil && !c.Loader.IsBuiltin() {
		return "defined by an unsupported class loader", true
	}
	if c.ClasspathIndex < 0 || c.ClasspathIndex >= len(d.classpath) {
		return "not loaded from the recorded classpath", true
	}
	return "", false
}

// WarnExcluded emits the one diagnostic line every exclusion gets.
func (d *Dumper) WarnExcluded(c *loader.Class, reason string) {
	d.log.Warn("skipping class from archive", "class", c.Name, "reason", reason)
}

func (d *Dumper) markExcluded(info *DumpTimeClassInfo, reason string) {
	if info.Excluded {
		return
	}
	info.Excluded = true
	info.ExcludeReason = reason
	d.WarnExcluded(info.Class, reason)
}

// ValidateBeforeArchiving runs the exclusion policy and dump-time sanity
// checks for one class, marking its record excluded if necessary.
func (d *Dumper) ValidateBeforeArchiving(c *loader.Class) {
	info := d.table.Get(c)
	if info == nil {
		return
	}
	if reason, excluded := d.ShouldBeExcluded(c); excluded {
		d.markExcluded(info, reason)
	}
}

// IsExcluded reports whether a class has been ruled out of the archive.
func (d *Dumper) IsExcluded(c *loader.Class) bool {
	info := d.table.Get(c)
	return info != nil && info.Excluded
}

// CheckExcludedClasses is the final pass run after all classes have been
// observed. It catches exclusions that depend on global state: a class
// whose superclass or any declared interface is excluded is itself
// excluded, transitively, so no archived class ever claims an excluded
// class as a resolved supertype. Exclusion within one dump is monotonic.
func (d *Dumper) CheckExcludedClasses() {
	for changed := true; changed; {
		changed = false
		var pending []*DumpTimeClassInfo
		d.table.ClassesDo(func(info *DumpTimeClassInfo) bool {
			if info.Excluded {
				return true
			}
			if d.supertypeExcluded(info.Class) {
				pending = append(pending, info)
			}
			return true
		})
		for _, info := range pending {
			d.markExcluded(info, "supertype is excluded from the archive")
			changed = true
		}
	}
}

func (d *Dumper) supertypeExcluded(c *loader.Class) bool {
	if c.Super != nil {
		if info := d.table.Get(c.Super); info != nil && info.Excluded {
			return true
		}
	}
	for _, iface := range c.Interfaces {
		if info := d.table.Get(iface); info != nil && info.Excluded {
			return true
		}
	}
	return false
}
