// Package cds implements the shared-class archive subsystem: dump-time
// candidate tracking, exclusion policy, verification-constraint recording
// and replay, the persisted shared dictionaries, and the lazily populated
// security-info tables consulted at run time.
package cds

import (
	"sort"

	"github.com/jvmshare/cds/pkg/loader"
)

// DumpTimeClassInfo is the mutable per-class record kept while the
// dump-time class graph is being built. It never survives into the
// archive; WriteToArchive projects it into a RunTimeClassRecord.
type DumpTimeClassInfo struct {
	Class *loader.Class

	// ID is the classlist id of the entry that produced this class,
	// or -1 when the entry carried none.
	ID int

	Excluded      bool
	ExcludeReason string

	Constraints []VerificationConstraint

	// Declared supertype names, recorded when the class is observed and
	// carried into the archived record.
	SuperName      string
	InterfaceNames []string

	// Unregistered classes must have their declared supertypes resolved
	// through the id graph before they may be archived.
	SuperResolved      bool
	InterfacesResolved bool
}

// IsExcluded reports whether the class has been ruled out of the archive.
func (info *DumpTimeClassInfo) IsExcluded() bool {
	return info.Excluded
}

// DumpTimeTable tracks every class observed while building an archive.
// Construction is single-threaded by design: the dump process owns the
// table exclusively, so there is no internal locking.
type DumpTimeTable struct {
	classes map[*loader.Class]*DumpTimeClassInfo
	guard   loadingGuard
}

// NewDumpTimeTable creates an empty dump-time table.
func NewDumpTimeTable() *DumpTimeTable {
	return &DumpTimeTable{classes: make(map[*loader.Class]*DumpTimeClassInfo)}
}

// FindOrAllocateInfoFor returns the record for a class, allocating it the
// first time the class is observed.
func (t *DumpTimeTable) FindOrAllocateInfoFor(c *loader.Class) *DumpTimeClassInfo {
	t.guard.assertLoadingAllowed()
	if info, ok := t.classes[c]; ok {
		return info
	}
	info := &DumpTimeClassInfo{Class: c, ID: -1}
	t.classes[c] = info
	return info
}

// InitDumpTimeInfo records a newly observed class. Idempotent per class.
func (t *DumpTimeTable) InitDumpTimeInfo(c *loader.Class) {
	t.FindOrAllocateInfoFor(c)
}

// RemoveDumpTimeInfo deletes the record of a class that turned out to be
// unshareable. Must happen before serialization, never after.
func (t *DumpTimeTable) RemoveDumpTimeInfo(c *loader.Class) {
	delete(t.classes, c)
}

// Get returns the record for a class, or nil if it was never observed.
func (t *DumpTimeTable) Get(c *loader.Class) *DumpTimeClassInfo {
	return t.classes[c]
}

// Len returns the number of live records.
func (t *DumpTimeTable) Len() int {
	return len(t.classes)
}

// Empty reports whether no class has been observed.
func (t *DumpTimeTable) Empty() bool {
	return len(t.classes) == 0
}

// ClassesDo visits every live record. Iteration order is deterministic
// within a dump run: sorted by class name, fingerprint-ordered among
// same-named classes. The visitor returns false to stop early; ClassesDo
// may then be restarted from the beginning.
func (t *DumpTimeTable) ClassesDo(visit func(*DumpTimeClassInfo) bool) {
	release := t.guard.beginNoClassLoading()
	defer release()

	infos := make([]*DumpTimeClassInfo, 0, len(t.classes))
	for _, info := range t.classes {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i].Class, infos[j].Class
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Fingerprint.Size != b.Fingerprint.Size {
			return a.Fingerprint.Size < b.Fingerprint.Size
		}
		return a.Fingerprint.Checksum < b.Fingerprint.Checksum
	})
	for _, info := range infos {
		if !visit(info) {
			return
		}
	}
}

// EstimateSizeForArchive returns a conservative upper bound on the
// serialized size of the table, used to presize the output buffer for
// the single-pass write.
func (t *DumpTimeTable) EstimateSizeForArchive() int {
	size := dictionaryHeaderSize
	for _, info := range t.classes {
		size += recordSizeUpperBound(info)
	}
	return size
}
