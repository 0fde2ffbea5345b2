package cds

import (
	"github.com/jvmshare/cds/pkg/classfile"
	"github.com/jvmshare/cds/pkg/loader"
)

// LayerKind distinguishes the two archive layers. The static (base)
// archive is built first; a dynamic archive may be layered on top of it
// and shadows it on lookup.
type LayerKind uint8

const (
	StaticLayer LayerKind = iota
	DynamicLayer
)

func (k LayerKind) String() string {
	if k == DynamicLayer {
		return "dynamic"
	}
	return "static"
}

// RunTimeClassRecord is the immutable, archive-resident projection of a
// dump-time record. Written once during serialization, read many times.
type RunTimeClassRecord struct {
	Name           string
	Category       loader.Category
	ClasspathIndex int
	Fingerprint    classfile.Fingerprint
	SuperName      string
	InterfaceNames []string
	Constraints    []VerificationConstraint
}

// Dictionary is a read-only-after-build index from class name to archived
// records. Builtin dictionaries hold at most one record per name;
// unregistered dictionaries may hold several same-named records that
// differ in fingerprint.
type Dictionary struct {
	records map[string][]*RunTimeClassRecord
	count   int
}

func newDictionary() *Dictionary {
	return &Dictionary{records: make(map[string][]*RunTimeClassRecord)}
}

func (d *Dictionary) add(rec *RunTimeClassRecord) {
	d.records[rec.Name] = append(d.records[rec.Name], rec)
	d.count++
}

// Len returns the number of records in the dictionary.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return d.count
}

// FindRecord returns the first record archived under name, or nil.
// Lookup is read-only and safe for concurrent use once the dictionary
// is built.
func FindRecord(d *Dictionary, name string) *RunTimeClassRecord {
	if d == nil {
		return nil
	}
	recs := d.records[name]
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

// findByFingerprint returns the first same-named record whose fingerprint
// matches fp exactly, or nil.
func (d *Dictionary) findByFingerprint(name string, fp classfile.Fingerprint) *RunTimeClassRecord {
	if d == nil || fp.IsZero() {
		return nil
	}
	for _, rec := range d.records[name] {
		if rec.Fingerprint == fp {
			return rec
		}
	}
	return nil
}

// ArchiveLayer is one mapped archive: its kind, its two dictionaries, and
// the classpath entries recorded in its header.
type ArchiveLayer struct {
	Kind         LayerKind
	Builtin      *Dictionary
	Unregistered *Dictionary
	Classpath    []string
}

// layeredDictionaries is an ordered list of immutable archive layers,
// probed newest-first. Layers are never merged: the static and dynamic
// archives are built at different times and invalidated independently.
type layeredDictionaries struct {
	layers []*ArchiveLayer
}

func (ld *layeredDictionaries) findBuiltin(name string) *RunTimeClassRecord {
	for _, layer := range ld.layers {
		if rec := FindRecord(layer.Builtin, name); rec != nil {
			return rec
		}
	}
	return nil
}

func (ld *layeredDictionaries) findUnregistered(name string, fp classfile.Fingerprint) *RunTimeClassRecord {
	// Dynamic before static: on a name/fingerprint collision the more
	// recent layer wins. Same name with a different fingerprint in both
	// layers also resolves by probe order (first match wins).
	for _, layer := range ld.layers {
		if rec := layer.Unregistered.findByFingerprint(name, fp); rec != nil {
			return rec
		}
	}
	return nil
}
