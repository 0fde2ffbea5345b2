package cds

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jvmshare/cds/pkg/classfile"
	"github.com/jvmshare/cds/pkg/loader"
)

// SharedRuntime is the run-time face of the subsystem: the mapped archive
// layers plus the lazily populated security-info tables. Dictionary
// lookups are lock-free and read-only; the security tables are the only
// mutable state and use the single-writer-wins publish protocol.
type SharedRuntime struct {
	dicts     layeredDictionaries
	security  SecurityInfoTables
	classpath []string
	source    *loader.SourceReader
	resolver  Assignability
	log       *slog.Logger
}

// RuntimeOption configures a SharedRuntime.
type RuntimeOption func(*SharedRuntime)

// WithAssignability installs the verifier collaborator used to replay
// verification constraints.
func WithAssignability(r Assignability) RuntimeOption {
	return func(rt *SharedRuntime) { rt.resolver = r }
}

// WithRuntimeLogger directs run-time diagnostics to a specific logger.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(rt *SharedRuntime) { rt.log = l }
}

// WithRuntimeSourceReader substitutes the reader used to materialize jar
// manifests for classpath entries.
func WithRuntimeSourceReader(sr *loader.SourceReader) RuntimeOption {
	return func(rt *SharedRuntime) { rt.source = sr }
}

// NewSharedRuntime assembles the runtime view over one or two mapped
// archive layers. Layers are probed newest-first: dynamic shadows static.
// The security tables are sized here, once, from the archive headers.
func NewSharedRuntime(layers []*ArchiveLayer, opts ...RuntimeOption) (*SharedRuntime, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("cds: no archive layers")
	}
	if len(layers) > 2 {
		return nil, fmt.Errorf("cds: at most one static and one dynamic layer supported, got %d", len(layers))
	}

	ordered := append([]*ArchiveLayer(nil), layers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind == DynamicLayer && ordered[j].Kind == StaticLayer
	})
	if len(ordered) == 2 && ordered[0].Kind == ordered[1].Kind {
		return nil, fmt.Errorf("cds: two %s layers", ordered[0].Kind)
	}

	rt := &SharedRuntime{
		dicts:  layeredDictionaries{layers: ordered},
		source: loader.NewSourceReader(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}

	// The classpath of the base layer is authoritative; a dynamic layer
	// may extend it with additional entries.
	base := ordered[len(ordered)-1]
	rt.classpath = base.Classpath
	if len(ordered) == 2 && len(ordered[0].Classpath) > len(rt.classpath) {
		rt.classpath = ordered[0].Classpath
	}
	rt.security.AllocateSharedDataArrays(len(rt.classpath))
	return rt, nil
}

// Security exposes the security-info tables, e.g. for GC root walking.
func (rt *SharedRuntime) Security() *SecurityInfoTables {
	return &rt.security
}

// Classpath returns the classpath entries recorded in the archive header.
func (rt *SharedRuntime) Classpath() []string {
	return rt.classpath
}

// FindBuiltinClass looks a class up in the builtin dictionaries only.
// Used exclusively by the fixed system loaders; builtin identity is
// loader-scoped, so no fingerprint is involved. Read-only and free of
// class-loading side effects.
func (rt *SharedRuntime) FindBuiltinClass(name string) *RunTimeClassRecord {
	return rt.dicts.findBuiltin(name)
}

// FindOrLoadSharedClass looks a class up on behalf of a non-system
// loader: the unregistered dictionaries are probed newest-first for a
// same-named record whose fingerprint equals fp exactly. No match is a
// cache miss, not an error — the caller proceeds with ordinary loading.
// The lookup itself performs no class-loading side effect.
func (rt *SharedRuntime) FindOrLoadSharedClass(name string, ldr *loader.Loader, fp classfile.Fingerprint) *RunTimeClassRecord {
	if ldr.IsBuiltin() {
		// System loaders resolve by name through the builtin dictionary.
		return rt.FindBuiltinClass(name)
	}
	return rt.dicts.findUnregistered(name, fp)
}

// LoadSharedClass materializes an archived record for a loader: it
// replays the recorded verification constraints and initializes security
// info. A ConstraintError means the class must not be treated as
// pre-verified; the caller falls back to the ordinary loading path.
func (rt *SharedRuntime) LoadSharedClass(rec *RunTimeClassRecord, ldr *loader.Loader) (*loader.Class, error) {
	if err := CheckVerificationConstraints(rec, rt.resolver); err != nil {
		rt.log.Warn("archived class failed constraint replay", "class", rec.Name, "err", err)
		return nil, err
	}

	c := &loader.Class{
		Name:           rec.Name,
		Loader:         ldr,
		ClasspathIndex: rec.ClasspathIndex,
		IsUnregistered: rec.Category == loader.Unregistered,
		Fingerprint:    rec.Fingerprint,
	}
	if err := rt.InitSecurityInfo(ldr, c); err != nil {
		return nil, err
	}
	return c, nil
}

// InitSecurityInfo attaches a protection domain to a class on first real
// use, materializing the per-classpath-entry jar URL and manifest through
// the shared tables. Re-entrant and idempotent per class: concurrent
// callers may construct competing candidates, but only the first
// published value is ever observed.
func (rt *SharedRuntime) InitSecurityInfo(ldr *loader.Loader, c *loader.Class) error {
	if c.ProtectionDomain != nil {
		return nil
	}

	if c.IsUnregistered {
		// Unregistered classes take their security context from the
		// defining loader, not from the recorded classpath.
		c.ProtectionDomain = loader.NewProtectionDomain("", ldr)
		return nil
	}

	index := c.ClasspathIndex
	if index < 0 || index >= rt.security.Size() {
		return fmt.Errorf("cds: class %s has classpath index %d outside the archived classpath", c.Name, index)
	}

	url := rt.security.SharedJarURL(index)
	if url == nil {
		candidate, err := loader.JarURLFor(rt.classpath[index])
		if err != nil {
			return err
		}
		url = rt.security.AtomicSetSharedJarURL(index, candidate)
	}

	if rt.security.SharedJarManifest(index) == nil {
		candidate, err := rt.source.ReadManifest(rt.classpath[index])
		if err != nil {
			return err
		}
		if candidate == nil {
			// Directory entries have no manifest; publish an empty one so
			// the slot still converges.
			candidate = &loader.Manifest{}
		}
		rt.security.AtomicSetSharedJarManifest(index, candidate)
	}

	pd := rt.security.SharedProtectionDomain(index)
	if pd == nil {
		pd = rt.security.AtomicSetSharedProtectionDomain(index, loader.NewProtectionDomain(url.URL, ldr))
	}
	c.ProtectionDomain = pd
	return nil
}

// OopsDo enumerates every heap-managed object the subsystem holds live,
// so the collector can trace them. Safe with dictionaries mapped and the
// security tables still partly empty.
func (rt *SharedRuntime) OopsDo(visit OopVisitor) {
	rt.security.OopsDo(visit)
}
