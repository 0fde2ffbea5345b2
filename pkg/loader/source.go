package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SourceReader reads raw class bytes from classlist "source:" locations:
// either a directory of .class files or a jar file. The bytes it returns
// are exactly the fingerprint input.
type SourceReader struct {
	jars map[string]*jarFile
}

type jarFile struct {
	reader *zip.Reader
	data   []byte
}

// NewSourceReader creates a reader with an empty jar cache.
func NewSourceReader() *SourceReader {
	return &SourceReader{jars: make(map[string]*jarFile)}
}

// ReadClass returns the raw bytes of className (slash-separated, without
// the .class suffix) from the given source location.
func (sr *SourceReader) ReadClass(source, className string) ([]byte, error) {
	if isJarPath(source) {
		return sr.readFromJar(source, className+".class")
	}
	data, err := os.ReadFile(filepath.Join(source, className+".class"))
	if err != nil {
		return nil, fmt.Errorf("source: class %s not found in %s: %w", className, source, err)
	}
	return data, nil
}

// ReadManifest returns the parsed META-INF/MANIFEST.MF of a jar source,
// or nil if the source is a directory or the jar has no manifest.
func (sr *SourceReader) ReadManifest(source string) (*Manifest, error) {
	if !isJarPath(source) {
		return nil, nil
	}
	data, err := sr.readFromJar(source, "META-INF/MANIFEST.MF")
	if err != nil {
		return nil, nil // manifest is optional
	}
	return ParseManifest(data)
}

func isJarPath(source string) bool {
	if strings.HasSuffix(source, ".jar") || strings.HasSuffix(source, ".zip") {
		return true
	}
	info, err := os.Stat(source)
	return err == nil && !info.IsDir()
}

func (sr *SourceReader) ensureJar(path string) (*jarFile, error) {
	if jf, ok := sr.jars[path]; ok {
		return jf, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jar: opening %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("jar: stat %s: %w", path, err)
	}

	data := make([]byte, stat.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("jar: reading %s: %w", path, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("jar: opening zip %s: %w", path, err)
	}

	jf := &jarFile{reader: zr, data: data}
	sr.jars[path] = jf
	return jf, nil
}

func (sr *SourceReader) readFromJar(path, entry string) ([]byte, error) {
	jf, err := sr.ensureJar(path)
	if err != nil {
		return nil, err
	}
	for _, file := range jf.reader.File {
		if file.Name == entry {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("jar: opening %s in %s: %w", entry, path, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("jar: entry %s not found in %s", entry, path)
}
