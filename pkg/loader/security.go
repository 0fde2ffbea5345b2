package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// ProtectionDomain is the security context attached to a loaded class:
// where its code came from and which loader defined it. In this runtime
// it is a plain value; the archive subsystem treats it as an opaque
// heap-managed object that must be published exactly once per classpath
// entry.
type ProtectionDomain struct {
	CodeSource string
	Loader     *Loader
}

// NewProtectionDomain builds a protection domain from a code-source URL.
func NewProtectionDomain(codeSource string, l *Loader) *ProtectionDomain {
	return &ProtectionDomain{CodeSource: codeSource, Loader: l}
}

// JarURL is the location object for one classpath entry.
type JarURL struct {
	Path string
	URL  string
}

// JarURLFor builds the file URL for a classpath entry path.
func JarURLFor(path string) (*JarURL, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("jar url: resolving %s: %w", path, err)
	}
	return &JarURL{Path: path, URL: "file:" + filepath.ToSlash(abs)}, nil
}

// Manifest holds the main attributes of a jar's META-INF/MANIFEST.MF.
type Manifest struct {
	MainAttributes map[string]string
}

// ParseManifest decodes a manifest's main section. Per the jar spec, a
// line starting with a single space continues the previous value, and
// the main section ends at the first blank line.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{MainAttributes: make(map[string]string)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lastKey string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break // end of main section
		}
		if strings.HasPrefix(line, " ") {
			if lastKey == "" {
				return nil, fmt.Errorf("manifest: continuation line before any attribute")
			}
			m.MainAttributes[lastKey] += line[1:]
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("manifest: malformed line %q", line)
		}
		lastKey = key
		m.MainAttributes[key] = strings.TrimPrefix(value, " ")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// Attribute returns a main attribute value, or "".
func (m *Manifest) Attribute(name string) string {
	if m == nil {
		return ""
	}
	return m.MainAttributes[name]
}
