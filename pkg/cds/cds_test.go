package cds

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jvmshare/cds/pkg/classfile"
	"github.com/jvmshare/cds/pkg/loader"
)

// classBytes assembles a minimal valid class-file header: constant pool
// with the Utf8/Class entries for this/super/interfaces and empty
// field/method tables.
func classBytes(t *testing.T, name, super string, flags uint16, ifaces ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := func(v interface{}) {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}

	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(55))

	names := []string{name}
	if super != "" {
		names = append(names, super)
	}
	names = append(names, ifaces...)

	w(uint16(1 + 2*len(names)))
	classIndex := make(map[string]uint16)
	next := uint16(1)
	for _, n := range names {
		w(uint8(classfile.TagUtf8))
		w(uint16(len(n)))
		buf.WriteString(n)
		w(uint8(classfile.TagClass))
		w(next)
		classIndex[n] = next + 1
		next += 2
	}

	if flags == 0 {
		flags = classfile.AccPublic | classfile.AccSuper
	}
	w(flags)
	w(classIndex[name])
	if super == "" {
		w(uint16(0))
	} else {
		w(classIndex[super])
	}
	w(uint16(len(ifaces)))
	for _, n := range ifaces {
		w(classIndex[n])
	}
	w(uint16(0))
	w(uint16(0))
	w(uint16(0))

	return buf.Bytes()
}

func interfaceBytes(t *testing.T, name string) []byte {
	t.Helper()
	return classBytes(t, name, "java/lang/Object",
		classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract)
}

// writeClassDir materializes class files into a temp directory usable as
// a classpath entry or an unregistered "source:" location.
func writeClassDir(t *testing.T, classes map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range classes {
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return dir
}

// writeJar materializes class files into a temp jar.
func writeJar(t *testing.T, classes map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classes.jar")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range classes {
		w, err := zw.Create(name + ".class")
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseClasslistString(t *testing.T, text string) []ClasslistEntry {
	t.Helper()
	entries, err := ParseClasslist(bytes.NewBufferString(text))
	require.NoError(t, err)
	return entries
}

// assignabilityMap is a test double for the verifier collaborator: a set
// of (target, from) pairs that are considered assignable.
type assignabilityMap map[[2]string]bool

func (m assignabilityMap) IsReferenceAssignable(target, from string, fromFieldIsProtected, fromIsArray, fromIsObject bool) bool {
	return m[[2]string{target, from}]
}

func builtinClass(name string, index int) *loader.Class {
	return &loader.Class{Name: name, Loader: loader.AppLoader, ClasspathIndex: index}
}

func unregisteredClass(name string, fp classfile.Fingerprint) *loader.Class {
	return &loader.Class{
		Name:           name,
		Loader:         loader.NewCustomLoader("test-loader"),
		IsUnregistered: true,
		Fingerprint:    fp,
	}
}
