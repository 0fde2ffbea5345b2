package cds

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jvmshare/cds/pkg/loader"
)

// ClasslistEntry is one line of the dump-time archive description input.
//
// Builtin entries name a class on the classpath and may carry at most an
// "id". Unregistered entries additionally describe how to re-create the
// class: where its bytes live ("source") and which previously declared
// ids form its supertype graph ("super", "interfaces").
type ClasslistEntry struct {
	Name         string
	ID           int // -1 if absent
	SuperID      int // -1 if absent
	InterfaceIDs []int
	LoaderName   string
	Source       string
	Line         int
}

// IsUnregistered reports whether the entry describes an unregistered
// class (it carries a "source" location).
func (e *ClasslistEntry) IsUnregistered() bool {
	return e.Source != ""
}

// ParseClasslist reads the textual archive description. Lines starting
// with '#' and blank lines are skipped. Any grammar violation is a
// configuration error reported with its line number; nothing is handed
// to the dump-time table until the whole list parses.
func ParseClasslist(r io.Reader) ([]ClasslistEntry, error) {
	var entries []ClasslistEntry
	seenIDs := make(map[int]int) // id -> line declared

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseClasslistLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		if entry.ID >= 0 {
			if prev, dup := seenIDs[entry.ID]; dup {
				return nil, fmt.Errorf("classlist line %d: id %d already declared on line %d", lineNo, entry.ID, prev)
			}
			seenIDs[entry.ID] = lineNo
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("classlist: %w", err)
	}
	return entries, nil
}

func parseClasslistLine(line string, lineNo int) (ClasslistEntry, error) {
	entry := ClasslistEntry{ID: -1, SuperID: -1, Line: lineNo}

	fields := strings.Fields(line)
	entry.Name = fields[0]
	if strings.Contains(entry.Name, ":") {
		return entry, fmt.Errorf("classlist line %d: missing class name", lineNo)
	}

	i := 1
	next := func(attr string) (string, error) {
		if i >= len(fields) {
			return "", fmt.Errorf("classlist line %d: attribute %q has no value", lineNo, attr)
		}
		v := fields[i]
		i++
		return v, nil
	}

	for i < len(fields) {
		tok := fields[i]
		i++

		attr, inline, hasColon := strings.Cut(tok, ":")
		if !hasColon {
			return entry, fmt.Errorf("classlist line %d: unexpected token %q", lineNo, tok)
		}
		value := inline
		if value == "" && attr != "interfaces" {
			v, err := next(attr)
			if err != nil {
				return entry, err
			}
			value = v
		}

		switch attr {
		case "id":
			id, err := strconv.Atoi(value)
			if err != nil || id < 0 {
				return entry, fmt.Errorf("classlist line %d: invalid id %q", lineNo, value)
			}
			entry.ID = id
		case "super":
			id, err := strconv.Atoi(value)
			if err != nil || id < 0 {
				return entry, fmt.Errorf("classlist line %d: invalid super id %q", lineNo, value)
			}
			entry.SuperID = id
		case "interfaces":
			// One or more ids, up to the next attribute token.
			if value != "" {
				id, err := strconv.Atoi(value)
				if err != nil || id < 0 {
					return entry, fmt.Errorf("classlist line %d: invalid interface id %q", lineNo, value)
				}
				entry.InterfaceIDs = append(entry.InterfaceIDs, id)
			}
			for i < len(fields) && !strings.Contains(fields[i], ":") {
				id, err := strconv.Atoi(fields[i])
				if err != nil || id < 0 {
					return entry, fmt.Errorf("classlist line %d: invalid interface id %q", lineNo, fields[i])
				}
				entry.InterfaceIDs = append(entry.InterfaceIDs, id)
				i++
			}
			if len(entry.InterfaceIDs) == 0 {
				return entry, fmt.Errorf("classlist line %d: attribute \"interfaces\" has no value", lineNo)
			}
		case "loader":
			entry.LoaderName = value
		case "source":
			entry.Source = value
		default:
			return entry, fmt.Errorf("classlist line %d: unknown attribute %q", lineNo, attr)
		}
	}

	if err := validateClasslistEntry(&entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// validateClasslistEntry enforces the per-category attribute rules:
// builtin entries carry at most "id"; unregistered entries must carry
// "id", "super" and "source".
func validateClasslistEntry(e *ClasslistEntry) error {
	if !e.IsUnregistered() {
		if e.SuperID >= 0 || len(e.InterfaceIDs) > 0 || e.LoaderName != "" {
			return fmt.Errorf("classlist line %d: class %s: only the \"id\" attribute is allowed for classes on the classpath", e.Line, e.Name)
		}
		return nil
	}
	if e.ID < 0 {
		return fmt.Errorf("classlist line %d: class %s: unregistered class requires an \"id\"", e.Line, e.Name)
	}
	if e.SuperID < 0 {
		return fmt.Errorf("classlist line %d: class %s: unregistered class requires a \"super\"", e.Line, e.Name)
	}
	if e.LoaderName != "" {
		// "loader:" names the defining custom loader; the fixed system
		// loaders define builtin classes only.
		if kind, err := loader.KindFromName(e.LoaderName); err == nil && kind.IsBuiltin() {
			return fmt.Errorf("classlist line %d: class %s: loader %q is a system loader and cannot define an unregistered class", e.Line, e.Name, e.LoaderName)
		}
	}
	return nil
}
