package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// classBuilder assembles a minimal, valid class-file header for tests:
// constant pool with the Utf8/Class entries needed for this/super/interfaces,
// zero fields and methods.
type classBuilder struct {
	name       string
	super      string
	interfaces []string
	flags      uint16
}

func (b classBuilder) bytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := func(v interface{}) {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}

	w(uint32(0xCAFEBABE))
	w(uint16(0))  // minor
	w(uint16(55)) // major (Java 11)

	// Each named class costs two pool entries: Utf8 + Class.
	names := []string{b.name}
	if b.super != "" {
		names = append(names, b.super)
	}
	names = append(names, b.interfaces...)

	w(uint16(1 + 2*len(names))) // constant_pool_count
	classIndex := make(map[string]uint16)
	next := uint16(1)
	for _, n := range names {
		w(uint8(TagUtf8))
		w(uint16(len(n)))
		buf.WriteString(n)
		w(uint8(TagClass))
		w(next) // NameIndex of the Utf8 just written
		classIndex[n] = next + 1
		next += 2
	}

	flags := b.flags
	if flags == 0 {
		flags = AccPublic | AccSuper
	}
	w(flags)
	w(classIndex[b.name])
	if b.super == "" {
		w(uint16(0))
	} else {
		w(classIndex[b.super])
	}
	w(uint16(len(b.interfaces)))
	for _, n := range b.interfaces {
		w(classIndex[n])
	}
	w(uint16(0)) // fields_count
	w(uint16(0)) // methods_count
	w(uint16(0)) // attributes_count

	return buf.Bytes()
}

func TestParseHeader(t *testing.T) {
	data := classBuilder{
		name:       "com/example/Foo",
		super:      "java/lang/Object",
		interfaces: []string{"java/io/Serializable", "java/lang/Runnable"},
	}.bytes(t)

	cf, err := ParseBytes(data)
	require.NoError(t, err)

	name, err := cf.ClassName()
	require.NoError(t, err)
	require.Equal(t, "com/example/Foo", name)
	require.Equal(t, "java/lang/Object", cf.SuperClassName())

	ifaces, err := cf.InterfaceNames()
	require.NoError(t, err)
	require.Equal(t, []string{"java/io/Serializable", "java/lang/Runnable"}, ifaces)
	require.False(t, cf.IsInterface())
}

func TestParseInterface(t *testing.T) {
	data := classBuilder{
		name:  "com/example/Iface",
		super: "java/lang/Object",
		flags: AccPublic | AccInterface | AccAbstract,
	}.bytes(t)

	cf, err := ParseBytes(data)
	require.NoError(t, err)
	require.True(t, cf.IsInterface())
}

func TestParseNoSuper(t *testing.T) {
	// java/lang/Object has super_class == 0.
	data := classBuilder{name: "java/lang/Object"}.bytes(t)

	cf, err := ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, "", cf.SuperClassName())
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := ParseBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00})
	require.Error(t, err)
}

func TestParseTruncated(t *testing.T) {
	data := classBuilder{name: "Foo", super: "java/lang/Object"}.bytes(t)
	_, err := ParseBytes(data[:10])
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	data := classBuilder{name: "Foo", super: "java/lang/Object"}.bytes(t)

	fp := FingerprintOf(data)
	require.Equal(t, uint32(len(data)), fp.Size)
	require.False(t, fp.IsZero())
	require.Equal(t, fp, FingerprintOf(data))

	// Any single-byte difference changes the fingerprint.
	mutated := append([]byte(nil), data...)
	mutated[len(mutated)-1] ^= 0x01
	require.NotEqual(t, fp, FingerprintOf(mutated))

	require.True(t, Fingerprint{}.IsZero())
}
