package cds

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jvmshare/cds/pkg/classfile"
	"github.com/jvmshare/cds/pkg/loader"
)

func buildTestTable(t *testing.T) *DumpTimeTable {
	t.Helper()
	table := NewDumpTimeTable()

	a := builtinClass("A", 0)
	info := table.FindOrAllocateInfoFor(a)
	info.SuperName = "java/lang/Object"

	b := unregisteredClass("B", classfile.Fingerprint{Size: 120, Checksum: 0xABCD})
	info = table.FindOrAllocateInfoFor(b)
	info.SuperName = "A"
	info.InterfaceNames = []string{"I"}
	info.SuperResolved = true
	info.InterfacesResolved = true

	return table
}

func TestWriteReadRoundTrip(t *testing.T) {
	table := buildTestTable(t)
	classpath := []string{"/opt/app/classes", "/opt/app/lib/util.jar"}

	data, err := WriteToArchive(table, classpath, StaticLayer)
	require.NoError(t, err)

	hdr, err := ReadDictionaryHeader(data)
	require.NoError(t, err)
	require.Equal(t, StaticLayer, hdr.Kind)
	require.Equal(t, uint32(2), hdr.ClasspathCount)
	require.Equal(t, uint32(1), hdr.BuiltinCount)
	require.Equal(t, uint32(1), hdr.UnregisteredCount)

	layer, err := ReadDictionaries(data)
	require.NoError(t, err)
	require.Equal(t, classpath, layer.Classpath)

	a := FindRecord(layer.Builtin, "A")
	require.NotNil(t, a)
	require.Equal(t, loader.Builtin, a.Category)
	require.Equal(t, 0, a.ClasspathIndex)
	require.Equal(t, "java/lang/Object", a.SuperName)

	b := layer.Unregistered.findByFingerprint("B", classfile.Fingerprint{Size: 120, Checksum: 0xABCD})
	require.NotNil(t, b)
	require.Equal(t, loader.Unregistered, b.Category)
	require.Equal(t, "A", b.SuperName)
	require.Equal(t, []string{"I"}, b.InterfaceNames)
}

func TestExcludedClassesAreNotSerialized(t *testing.T) {
	table := buildTestTable(t)
	var excludedInfo *DumpTimeClassInfo
	table.ClassesDo(func(info *DumpTimeClassInfo) bool {
		if info.Class.Name == "B" {
			excludedInfo = info
		}
		return true
	})
	excludedInfo.Excluded = true
	excludedInfo.ExcludeReason = "test"

	data, err := WriteToArchive(table, nil, StaticLayer)
	require.NoError(t, err)

	layer, err := ReadDictionaries(data)
	require.NoError(t, err)
	require.Equal(t, 1, layer.Builtin.Len())
	require.Equal(t, 0, layer.Unregistered.Len())
	require.Nil(t, FindRecord(layer.Unregistered, "B"))
}

func TestWriteRejectsFingerprintlessUnregistered(t *testing.T) {
	table := NewDumpTimeTable()
	table.InitDumpTimeInfo(unregisteredClass("B", classfile.Fingerprint{}))

	_, err := WriteToArchive(table, nil, StaticLayer)
	require.ErrorContains(t, err, "no fingerprint")
}

func TestWriteRejectsOversizedStrings(t *testing.T) {
	longName := strings.Repeat("a", 1<<16)

	t.Run("class name", func(t *testing.T) {
		table := NewDumpTimeTable()
		table.InitDumpTimeInfo(builtinClass(longName, 0))

		_, err := WriteToArchive(table, nil, StaticLayer)
		require.ErrorContains(t, err, "exceeds")
	})

	t.Run("classpath entry", func(t *testing.T) {
		_, err := WriteToArchive(NewDumpTimeTable(), []string{longName}, StaticLayer)
		require.ErrorContains(t, err, "classpath entry 0")
	})
}

func TestReadRejectsCorruptPayloads(t *testing.T) {
	table := buildTestTable(t)
	data, err := WriteToArchive(table, []string{"cp"}, DynamicLayer)
	require.NoError(t, err)

	t.Run("truncated header", func(t *testing.T) {
		_, err := ReadDictionaries(data[:5])
		require.Error(t, err)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := ReadDictionaries(data[:len(data)-3])
		require.Error(t, err)
	})

	t.Run("unknown layer kind", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 0x7F
		_, err := ReadDictionaries(bad)
		require.ErrorContains(t, err, "layer kind")
	})
}

func TestFingerprintMatchIsExact(t *testing.T) {
	table := buildTestTable(t)
	data, err := WriteToArchive(table, nil, StaticLayer)
	require.NoError(t, err)
	layer, err := ReadDictionaries(data)
	require.NoError(t, err)

	fp := classfile.Fingerprint{Size: 120, Checksum: 0xABCD}
	require.NotNil(t, layer.Unregistered.findByFingerprint("B", fp))

	// Any single-bit difference in length or checksum yields no match.
	require.Nil(t, layer.Unregistered.findByFingerprint("B", classfile.Fingerprint{Size: 121, Checksum: 0xABCD}))
	require.Nil(t, layer.Unregistered.findByFingerprint("B", classfile.Fingerprint{Size: 120, Checksum: 0xABCC}))
	// A zero fingerprint never matches anything.
	require.Nil(t, layer.Unregistered.findByFingerprint("B", classfile.Fingerprint{}))
}

func TestDynamicLayerShadowsStatic(t *testing.T) {
	fp := classfile.Fingerprint{Size: 50, Checksum: 0xBEEF}

	makeLayer := func(kind LayerKind, classpathIndex int) *ArchiveLayer {
		table := NewDumpTimeTable()
		table.InitDumpTimeInfo(builtinClass("Shared", classpathIndex))
		c := unregisteredClass("U", fp)
		info := table.FindOrAllocateInfoFor(c)
		info.SuperResolved = true
		info.InterfacesResolved = true

		data, err := WriteToArchive(table, []string{"cp"}, kind)
		require.NoError(t, err)
		layer, err := ReadDictionaries(data)
		require.NoError(t, err)
		return layer
	}

	static := makeLayer(StaticLayer, 1)
	dynamic := makeLayer(DynamicLayer, 2)

	// Order given to the runtime should not matter; probe order is
	// always dynamic first.
	for _, layers := range [][]*ArchiveLayer{{static, dynamic}, {dynamic, static}} {
		rt, err := NewSharedRuntime(layers, WithRuntimeLogger(quietLogger()))
		require.NoError(t, err)

		rec := rt.FindBuiltinClass("Shared")
		require.NotNil(t, rec)
		require.Equal(t, 2, rec.ClasspathIndex, "dynamic-layer record must shadow the static one")

		u := rt.FindOrLoadSharedClass("U", loader.NewCustomLoader("x"), fp)
		require.NotNil(t, u)
	}
}
