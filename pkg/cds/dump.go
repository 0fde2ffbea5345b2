package cds

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jvmshare/cds/pkg/classfile"
	"github.com/jvmshare/cds/pkg/loader"
)

// ErrDumpFailed wraps every error that aborts archive creation. When it
// is returned no partial archive has been produced.
var ErrDumpFailed = errors.New("cds: dump failed")

func dumpErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDumpFailed, fmt.Sprintf(format, args...))
}

// Dumper owns one archive-creation run: it ingests a classlist, observes
// candidate classes into the dump-time table, resolves the unregistered
// identity graph, applies the exclusion policy and serializes the result.
// A Dumper is single-threaded by design.
type Dumper struct {
	table     *DumpTimeTable
	classpath []string
	source    *loader.SourceReader
	log       *slog.Logger

	byID map[int]*loader.Class
	// builtin classes by name; builtin identity is loader-scoped so one
	// record per name.
	builtinByName map[string]*loader.Class
	// unregistered classes by (name, fingerprint).
	unregistered map[unregisteredKey]*loader.Class
}

type unregisteredKey struct {
	name string
	fp   classfile.Fingerprint
}

// DumperOption configures a Dumper.
type DumperOption func(*Dumper)

// WithLogger directs dump diagnostics to a specific logger.
func WithLogger(l *slog.Logger) DumperOption {
	return func(d *Dumper) { d.log = l }
}

// WithSourceReader substitutes the reader used for classlist "source:"
// locations and classpath entries.
func WithSourceReader(sr *loader.SourceReader) DumperOption {
	return func(d *Dumper) { d.source = sr }
}

// NewDumper creates a dumper for the given classpath entries. The entry
// order is recorded into the archive header; classpath indices of builtin
// classes refer to it.
func NewDumper(classpath []string, opts ...DumperOption) *Dumper {
	d := &Dumper{
		table:         NewDumpTimeTable(),
		classpath:     classpath,
		source:        loader.NewSourceReader(),
		log:           slog.Default(),
		byID:          make(map[int]*loader.Class),
		builtinByName: make(map[string]*loader.Class),
		unregistered:  make(map[unregisteredKey]*loader.Class),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table exposes the dump-time table, e.g. for the verifier to record
// constraints against.
func (d *Dumper) Table() *DumpTimeTable {
	return d.table
}

// ProcessClasslist observes every class the (already validated) classlist
// describes. Builtin classes that cannot be found on the classpath are
// skipped with a warning; any failure around an unregistered class is
// fatal to the dump.
func (d *Dumper) ProcessClasslist(entries []ClasslistEntry) error {
	for i := range entries {
		entry := &entries[i]
		if entry.IsUnregistered() {
			if err := d.processUnregistered(entry); err != nil {
				return err
			}
		} else if err := d.processBuiltin(entry); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dumper) processBuiltin(entry *ClasslistEntry) error {
	data, index := d.findOnClasspath(entry.Name)
	if data == nil {
		d.log.Warn("class not found on classpath, skipping", "class", entry.Name)
		return nil
	}

	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return dumpErrorf("parsing %s: %v", entry.Name, err)
	}
	name, err := cf.ClassName()
	if err != nil {
		return dumpErrorf("parsing %s: %v", entry.Name, err)
	}
	if name != entry.Name {
		return dumpErrorf("classlist line %d: file for %s declares class %s", entry.Line, entry.Name, name)
	}

	if existing, ok := d.builtinByName[name]; ok {
		// Builtin identity is loader-scoped: one record per name.
		d.recordID(entry.ID, existing)
		return nil
	}

	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return dumpErrorf("parsing %s: %v", entry.Name, err)
	}

	c := &loader.Class{
		Name:           name,
		Loader:         loader.AppLoader,
		ClasspathIndex: index,
		Fingerprint:    classfile.FingerprintOf(data),
		IsInterface:    cf.IsInterface(),
	}

	info := d.table.FindOrAllocateInfoFor(c)
	info.SuperName = cf.SuperClassName()
	info.InterfaceNames = ifaces
	d.builtinByName[name] = c
	d.recordID(entry.ID, c)
	return nil
}

func (d *Dumper) processUnregistered(entry *ClasslistEntry) error {
	data, err := d.source.ReadClass(entry.Source, entry.Name)
	if err != nil {
		return dumpErrorf("classlist line %d: %v", entry.Line, err)
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return dumpErrorf("parsing %s from %s: %v", entry.Name, entry.Source, err)
	}
	name, err := cf.ClassName()
	if err != nil {
		return dumpErrorf("parsing %s from %s: %v", entry.Name, entry.Source, err)
	}
	if name != entry.Name {
		return dumpErrorf("classlist line %d: source for %s declares class %s", entry.Line, entry.Name, name)
	}

	var ldr *loader.Loader
	if entry.LoaderName != "" {
		ldr = loader.NewCustomLoader(entry.LoaderName)
	} else {
		ldr = loader.NewCustomLoader(fmt.Sprintf("unregistered-%d", entry.ID))
	}

	c := &loader.Class{
		Name:           name,
		Loader:         ldr,
		IsUnregistered: true,
		Fingerprint:    classfile.FingerprintOf(data),
		IsInterface:    cf.IsInterface(),
	}

	info := d.table.FindOrAllocateInfoFor(c)
	info.ID = entry.ID
	info.SuperName = cf.SuperClassName()

	// The supertype graph of an unregistered class resolves strictly
	// through ids declared earlier in the classlist, never through
	// ordinary loading delegation.
	super, err := d.DumpTimeResolveSuperOrFail(name, cf.SuperClassName(), entry.SuperID, true)
	if err != nil {
		d.table.RemoveDumpTimeInfo(c)
		return err
	}
	c.Super = super
	info.SuperResolved = true

	localIfaces, err := cf.InterfaceNames()
	if err != nil {
		d.table.RemoveDumpTimeInfo(c)
		return dumpErrorf("parsing %s: %v", name, err)
	}
	if len(localIfaces) != len(entry.InterfaceIDs) {
		d.table.RemoveDumpTimeInfo(c)
		if len(localIfaces) == 0 {
			return dumpErrorf("classlist line %d: class %s declares no local interfaces but \"interfaces\" was specified", entry.Line, name)
		}
		return dumpErrorf("classlist line %d: class %s declares %d local interfaces but %d ids were specified",
			entry.Line, name, len(localIfaces), len(entry.InterfaceIDs))
	}
	for i, ifaceName := range localIfaces {
		iface, err := d.DumpTimeResolveSuperOrFail(name, ifaceName, entry.InterfaceIDs[i], false)
		if err != nil {
			d.table.RemoveDumpTimeInfo(c)
			return err
		}
		c.Interfaces = append(c.Interfaces, iface)
		info.InterfaceNames = append(info.InterfaceNames, ifaceName)
	}
	info.InterfacesResolved = true

	if !d.AddUnregisteredClass(c) {
		d.table.RemoveDumpTimeInfo(c)
		return dumpErrorf("classlist line %d: duplicate unregistered class %s with fingerprint %s",
			entry.Line, name, c.Fingerprint)
	}
	d.recordID(entry.ID, c)
	return nil
}

// DumpTimeResolveSuperOrFail resolves the named super-type of an
// unregistered class through the identity graph built so far. The id must
// have been declared on an earlier classlist line, must name the declared
// type, and must agree on class-vs-interface. Any mismatch is fatal to
// the dump: the archive cannot be produced.
func (d *Dumper) DumpTimeResolveSuperOrFail(childName, superName string, id int, isSuperclass bool) (*loader.Class, error) {
	what := "interface"
	if isSuperclass {
		what = "superclass"
	}
	resolved, ok := d.byID[id]
	if !ok {
		return nil, dumpErrorf("%s id %d of class %s was not declared earlier in the classlist", what, id, childName)
	}
	if resolved.Name != superName {
		return nil, dumpErrorf("%s of class %s: id %d names %s, class file declares %s",
			what, childName, id, resolved.Name, superName)
	}
	if isSuperclass && resolved.IsInterface {
		return nil, dumpErrorf("superclass id %d of class %s resolves to an interface (%s)", id, childName, resolved.Name)
	}
	if !isSuperclass && !resolved.IsInterface {
		return nil, dumpErrorf("interface id %d of class %s resolves to a non-interface (%s)", id, childName, resolved.Name)
	}
	return resolved, nil
}

// AddUnregisteredClass registers an unregistered class under its
// (name, fingerprint) identity. Returns false if an identical class was
// already registered in this dump.
func (d *Dumper) AddUnregisteredClass(c *loader.Class) bool {
	key := unregisteredKey{name: c.Name, fp: c.Fingerprint}
	if _, ok := d.unregistered[key]; ok {
		return false
	}
	d.unregistered[key] = c
	return true
}

// AddVerificationConstraint records one assignability assumption the
// verifier made about a dump-time candidate.
func (d *Dumper) AddVerificationConstraint(c *loader.Class, target, from string,
	fromFieldIsProtected, fromIsArray, fromIsObject bool) bool {
	return d.table.AddVerificationConstraint(c, target, from, fromFieldIsProtected, fromIsArray, fromIsObject)
}

// WriteToArchive validates every candidate, runs the final exclusion
// pass, and serializes the surviving records into an archive layer.
func (d *Dumper) WriteToArchive(kind LayerKind) ([]byte, error) {
	d.resolveBuiltinHierarchy()
	d.table.ClassesDo(func(info *DumpTimeClassInfo) bool {
		d.ValidateBeforeArchiving(info.Class)
		return true
	})
	d.CheckExcludedClasses()
	return WriteToArchive(d.table, d.classpath, kind)
}

// resolveBuiltinHierarchy links the declared supertypes of builtin
// candidates by name once every classlist entry has been observed, so
// exclusion checks that walk the hierarchy do not depend on classlist
// order. A subclass listed before its superclass still ends up linked.
// Unregistered classes are already linked through the id graph.
func (d *Dumper) resolveBuiltinHierarchy() {
	d.table.ClassesDo(func(info *DumpTimeClassInfo) bool {
		c := info.Class
		if c.IsUnregistered {
			return true
		}
		if c.Super == nil && info.SuperName != "" {
			c.Super = d.builtinByName[info.SuperName]
		}
		if len(c.Interfaces) == 0 {
			for _, name := range info.InterfaceNames {
				if iface := d.builtinByName[name]; iface != nil {
					c.Interfaces = append(c.Interfaces, iface)
				}
			}
		}
		return true
	})
}

func (d *Dumper) findOnClasspath(name string) ([]byte, int) {
	for i, entry := range d.classpath {
		if data, err := d.source.ReadClass(entry, name); err == nil {
			return data, i
		}
	}
	return nil, -1
}

func (d *Dumper) recordID(id int, c *loader.Class) {
	if id >= 0 {
		d.byID[id] = c
	}
}
