package cds

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jvmshare/cds/pkg/loader"
)

// Persisted dictionary layout, little-endian:
//
//	header:  layer kind (u8), classpath count (u32),
//	         builtin count (u32), unregistered count (u32)
//	payload: classpath entry strings,
//	         builtin records, unregistered records
//
// Strings are u16-length-prefixed. A record is: name, category (u8),
// classpath index (u32), fingerprint (u32 size, u32 crc), super name,
// interface names (u16 count), constraints (u32 count; each target name,
// from name, flags u8).
const dictionaryHeaderSize = 1 + 4 + 4 + 4

// Constraint flag bits, as persisted.
const (
	fromFieldIsProtected = 1 << 0
	fromIsArray          = 1 << 1
	fromIsObject         = 1 << 2
)

// DictionaryHeader is the metadata prefix of a serialized archive layer.
// It is written and read separately from the payload so the reader can
// size its in-memory index before touching the bulk data.
type DictionaryHeader struct {
	Kind              LayerKind
	ClasspathCount    uint32
	BuiltinCount      uint32
	UnregisteredCount uint32
}

// SerializeDictionaryHeaders writes the header metadata of a layer.
func SerializeDictionaryHeaders(buf *bytes.Buffer, hdr DictionaryHeader) {
	buf.WriteByte(byte(hdr.Kind))
	var u32 [4]byte
	for _, v := range []uint32{hdr.ClasspathCount, hdr.BuiltinCount, hdr.UnregisteredCount} {
		binary.LittleEndian.PutUint32(u32[:], v)
		buf.Write(u32[:])
	}
}

// ReadDictionaryHeader decodes just the header metadata of a serialized
// layer.
func ReadDictionaryHeader(data []byte) (DictionaryHeader, error) {
	if len(data) < dictionaryHeaderSize {
		return DictionaryHeader{}, fmt.Errorf("cds: truncated dictionary header: %d bytes", len(data))
	}
	kind := LayerKind(data[0])
	if kind != StaticLayer && kind != DynamicLayer {
		return DictionaryHeader{}, fmt.Errorf("cds: unknown archive layer kind %d", data[0])
	}
	return DictionaryHeader{
		Kind:              kind,
		ClasspathCount:    binary.LittleEndian.Uint32(data[1:5]),
		BuiltinCount:      binary.LittleEndian.Uint32(data[5:9]),
		UnregisteredCount: binary.LittleEndian.Uint32(data[9:13]),
	}, nil
}

// WriteToArchive serializes every non-excluded record of the dump-time
// table into a persisted archive layer in a single pass. The output
// buffer is presized from EstimateSizeForArchive.
func WriteToArchive(t *DumpTimeTable, classpath []string, kind LayerKind) ([]byte, error) {
	var builtin, unregistered []*DumpTimeClassInfo
	t.ClassesDo(func(info *DumpTimeClassInfo) bool {
		if info.IsExcluded() {
			return true
		}
		if info.Class.IsUnregistered {
			unregistered = append(unregistered, info)
		} else {
			builtin = append(builtin, info)
		}
		return true
	})

	for _, info := range unregistered {
		if info.Class.Fingerprint.IsZero() {
			return nil, fmt.Errorf("cds: unregistered class %s has no fingerprint", info.Class.Name)
		}
	}

	buf := &bytes.Buffer{}
	buf.Grow(t.EstimateSizeForArchive() + classpathSize(classpath))

	SerializeDictionaryHeaders(buf, DictionaryHeader{
		Kind:              kind,
		ClasspathCount:    uint32(len(classpath)),
		BuiltinCount:      uint32(len(builtin)),
		UnregisteredCount: uint32(len(unregistered)),
	})
	for i, entry := range classpath {
		if err := writeString(buf, entry); err != nil {
			return nil, fmt.Errorf("cds: classpath entry %d: %w", i, err)
		}
	}
	if err := writeDictionary(buf, builtin); err != nil {
		return nil, err
	}
	if err := writeDictionary(buf, unregistered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeDictionary emits one category's records, in table iteration order.
func writeDictionary(buf *bytes.Buffer, infos []*DumpTimeClassInfo) error {
	var u32 [4]byte
	for _, info := range infos {
		c := info.Class
		if err := writeString(buf, c.Name); err != nil {
			return fmt.Errorf("cds: serializing %s: %w", truncName(c.Name), err)
		}
		if c.IsUnregistered {
			buf.WriteByte(byte(loader.Unregistered))
		} else {
			buf.WriteByte(byte(loader.Builtin))
		}
		binary.LittleEndian.PutUint32(u32[:], uint32(c.ClasspathIndex))
		buf.Write(u32[:])
		binary.LittleEndian.PutUint32(u32[:], c.Fingerprint.Size)
		buf.Write(u32[:])
		binary.LittleEndian.PutUint32(u32[:], c.Fingerprint.Checksum)
		buf.Write(u32[:])
		if err := writeString(buf, info.SuperName); err != nil {
			return fmt.Errorf("cds: serializing %s: %w", c.Name, err)
		}

		var u16 [2]byte
		binary.LittleEndian.PutUint16(u16[:], uint16(len(info.InterfaceNames)))
		buf.Write(u16[:])
		for _, name := range info.InterfaceNames {
			if err := writeString(buf, name); err != nil {
				return fmt.Errorf("cds: serializing %s: %w", c.Name, err)
			}
		}

		binary.LittleEndian.PutUint32(u32[:], uint32(len(info.Constraints)))
		buf.Write(u32[:])
		for _, vc := range info.Constraints {
			if err := writeString(buf, vc.TargetName); err != nil {
				return fmt.Errorf("cds: serializing %s: %w", c.Name, err)
			}
			if err := writeString(buf, vc.FromName); err != nil {
				return fmt.Errorf("cds: serializing %s: %w", c.Name, err)
			}
			var flags byte
			if vc.FromFieldIsProtected {
				flags |= fromFieldIsProtected
			}
			if vc.FromIsArray {
				flags |= fromIsArray
			}
			if vc.FromIsObject {
				flags |= fromIsObject
			}
			buf.WriteByte(flags)
		}
	}
	return nil
}

func truncName(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}

// writeString emits a u16-length-prefixed string. Names longer than the
// prefix can express would wrap the length and corrupt the framing, so
// they are rejected instead.
func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes exceeds the %d-byte limit", len(s), math.MaxUint16)
	}
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(s)))
	buf.Write(u16[:])
	buf.WriteString(s)
	return nil
}

// ReadDictionaries reconstructs an archive layer from a mapped base.
func ReadDictionaries(data []byte) (*ArchiveLayer, error) {
	hdr, err := ReadDictionaryHeader(data)
	if err != nil {
		return nil, err
	}
	r := &byteReader{data: data, off: dictionaryHeaderSize}

	layer := &ArchiveLayer{
		Kind:         hdr.Kind,
		Builtin:      newDictionary(),
		Unregistered: newDictionary(),
		Classpath:    make([]string, 0, hdr.ClasspathCount),
	}
	for i := uint32(0); i < hdr.ClasspathCount; i++ {
		entry, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("cds: reading classpath entry %d: %w", i, err)
		}
		layer.Classpath = append(layer.Classpath, entry)
	}
	for i := uint32(0); i < hdr.BuiltinCount; i++ {
		rec, err := r.readRecord()
		if err != nil {
			return nil, fmt.Errorf("cds: reading builtin record %d: %w", i, err)
		}
		if rec.Category != loader.Builtin {
			return nil, fmt.Errorf("cds: record %s in builtin dictionary has category %s", rec.Name, rec.Category)
		}
		layer.Builtin.add(rec)
	}
	for i := uint32(0); i < hdr.UnregisteredCount; i++ {
		rec, err := r.readRecord()
		if err != nil {
			return nil, fmt.Errorf("cds: reading unregistered record %d: %w", i, err)
		}
		if rec.Category != loader.Unregistered {
			return nil, fmt.Errorf("cds: record %s in unregistered dictionary has category %s", rec.Name, rec.Category)
		}
		if rec.Fingerprint.IsZero() {
			return nil, fmt.Errorf("cds: unregistered record %s has no fingerprint", rec.Name)
		}
		layer.Unregistered.add(rec)
	}
	return layer, nil
}

type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, fmt.Errorf("truncated payload at offset %d (need %d bytes)", r.off, n)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *byteReader) readU8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) readU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *byteReader) readU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) readString() (string, error) {
	n, err := r.readU16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) readRecord() (*RunTimeClassRecord, error) {
	rec := &RunTimeClassRecord{}
	var err error
	if rec.Name, err = r.readString(); err != nil {
		return nil, err
	}
	cat, err := r.readU8()
	if err != nil {
		return nil, err
	}
	rec.Category = loader.Category(cat)
	idx, err := r.readU32()
	if err != nil {
		return nil, err
	}
	rec.ClasspathIndex = int(int32(idx))
	if rec.Fingerprint.Size, err = r.readU32(); err != nil {
		return nil, err
	}
	if rec.Fingerprint.Checksum, err = r.readU32(); err != nil {
		return nil, err
	}
	if rec.SuperName, err = r.readString(); err != nil {
		return nil, err
	}
	ifaceCount, err := r.readU16()
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < ifaceCount; i++ {
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		rec.InterfaceNames = append(rec.InterfaceNames, name)
	}
	ccount, err := r.readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < ccount; i++ {
		var vc VerificationConstraint
		if vc.TargetName, err = r.readString(); err != nil {
			return nil, err
		}
		if vc.FromName, err = r.readString(); err != nil {
			return nil, err
		}
		flags, err := r.readU8()
		if err != nil {
			return nil, err
		}
		vc.FromFieldIsProtected = flags&fromFieldIsProtected != 0
		vc.FromIsArray = flags&fromIsArray != 0
		vc.FromIsObject = flags&fromIsObject != 0
		rec.Constraints = append(rec.Constraints, vc)
	}
	return rec, nil
}

// recordSizeUpperBound bounds the serialized size of one record.
func recordSizeUpperBound(info *DumpTimeClassInfo) int {
	size := 2 + len(info.Class.Name)
	size += 1 + 4 + 4 + 4 // category, classpath index, fingerprint
	size += 2 + len(info.SuperName)
	size += 2
	for _, name := range info.InterfaceNames {
		size += 2 + len(name)
	}
	size += 4
	for _, vc := range info.Constraints {
		size += 2 + len(vc.TargetName) + 2 + len(vc.FromName) + 1
	}
	return size
}

func classpathSize(classpath []string) int {
	size := 0
	for _, entry := range classpath {
		size += 2 + len(entry)
	}
	return size
}
