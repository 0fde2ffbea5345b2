// Package archive provides the file framing below the shared-dictionary
// layer: a fixed header with magic, format version and payload checksum,
// and a read-only memory mapping that hands the payload base to the
// dictionary reader.
package archive

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"golang.org/x/sys/unix"
)

const (
	magic      = "GCDS"
	version    = uint16(1)
	headerSize = 24

	offMagic      = 0
	offVersion    = 4
	offReserved   = 6
	offPayloadLen = 8
	offPayloadCRC = 16
)

// WriteFile frames a serialized dictionary payload and writes it to path
// atomically: the file appears complete or not at all.
func WriteFile(path string, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	copy(buf[offMagic:], magic)
	binary.LittleEndian.PutUint16(buf[offVersion:], version)
	binary.LittleEndian.PutUint64(buf[offPayloadLen:], uint64(len(payload)))
	binary.LittleEndian.PutUint32(buf[offPayloadCRC:], crc32.ChecksumIEEE(payload))
	copy(buf[headerSize:], payload)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("archive: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: writing %s: %w", path, err)
	}
	return nil
}

// Mapping is a read-only memory-mapped archive file. Data is the
// dictionary payload, valid until Close.
type Mapping struct {
	Data []byte
	mm   []byte
}

// Map memory-maps an archive file read-only and verifies its framing:
// magic, version, payload length and checksum.
func Map(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("archive: stat %s: %w", path, err)
	}
	size := stat.Size()
	if size < headerSize {
		return nil, fmt.Errorf("archive: %s is too small (%d bytes)", path, size)
	}

	mm, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("archive: mmap %s: %w", path, err)
	}

	m := &Mapping{mm: mm}
	if err := m.verify(path); err != nil {
		unix.Munmap(mm)
		return nil, err
	}
	return m, nil
}

func (m *Mapping) verify(path string) error {
	hdr := m.mm
	if string(hdr[offMagic:offMagic+4]) != magic {
		return fmt.Errorf("archive: %s is not a shared archive (bad magic)", path)
	}
	if v := binary.LittleEndian.Uint16(hdr[offVersion:]); v != version {
		return fmt.Errorf("archive: %s has format version %d, expected %d", path, v, version)
	}
	payloadLen := binary.LittleEndian.Uint64(hdr[offPayloadLen:])
	if headerSize+payloadLen > uint64(len(m.mm)) {
		return fmt.Errorf("archive: %s payload length %d exceeds file size", path, payloadLen)
	}
	payload := m.mm[headerSize : headerSize+payloadLen]
	if crc := crc32.ChecksumIEEE(payload); crc != binary.LittleEndian.Uint32(hdr[offPayloadCRC:]) {
		return fmt.Errorf("archive: %s payload checksum mismatch", path)
	}
	m.Data = payload
	return nil
}

// Close unmaps the archive. The Data slice must not be used afterwards.
func (m *Mapping) Close() error {
	if m.mm == nil {
		return nil
	}
	err := unix.Munmap(m.mm)
	m.mm, m.Data = nil, nil
	return err
}
