package cds

import (
	"fmt"
	"io"
)

// PrintOn writes a human-readable listing of the dump-time table.
func (d *Dumper) PrintOn(w io.Writer) {
	fmt.Fprintf(w, "Dump-time class table (%d classes):\n", d.table.Len())
	d.table.ClassesDo(func(info *DumpTimeClassInfo) bool {
		c := info.Class
		fmt.Fprintf(w, "  %-50s %-12s", c.Name, categoryLabel(c.IsUnregistered))
		if c.IsUnregistered {
			fmt.Fprintf(w, " fingerprint=%s", c.Fingerprint)
		} else {
			fmt.Fprintf(w, " classpath=%d", c.ClasspathIndex)
		}
		if info.Excluded {
			fmt.Fprintf(w, " EXCLUDED (%s)", info.ExcludeReason)
		}
		if len(info.Constraints) > 0 {
			fmt.Fprintf(w, " constraints=%d", len(info.Constraints))
		}
		fmt.Fprintln(w)
		return true
	})
}

// PrintTableStatistics summarizes the dump-time table.
func (d *Dumper) PrintTableStatistics(w io.Writer) {
	var builtin, unregistered, excluded, constraints int
	d.table.ClassesDo(func(info *DumpTimeClassInfo) bool {
		if info.Excluded {
			excluded++
			return true
		}
		if info.Class.IsUnregistered {
			unregistered++
		} else {
			builtin++
		}
		constraints += len(info.Constraints)
		return true
	})
	fmt.Fprintf(w, "builtin classes:          %d\n", builtin)
	fmt.Fprintf(w, "unregistered classes:     %d\n", unregistered)
	fmt.Fprintf(w, "excluded classes:         %d\n", excluded)
	fmt.Fprintf(w, "verification constraints: %d\n", constraints)
	fmt.Fprintf(w, "estimated archive size:   %d bytes\n", d.table.EstimateSizeForArchive())
}

// PrintTableStatistics summarizes the mapped archive layers.
func (rt *SharedRuntime) PrintTableStatistics(w io.Writer) {
	for _, layer := range rt.dicts.layers {
		fmt.Fprintf(w, "%s layer: %d builtin, %d unregistered, %d classpath entries\n",
			layer.Kind, layer.Builtin.Len(), layer.Unregistered.Len(), len(layer.Classpath))
	}
	populated := 0
	rt.security.OopsDo(func(any) { populated++ })
	fmt.Fprintf(w, "security-info slots populated: %d\n", populated)
}

func categoryLabel(unregistered bool) string {
	if unregistered {
		return "unregistered"
	}
	return "builtin"
}
