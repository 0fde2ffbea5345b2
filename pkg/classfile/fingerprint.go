package classfile

import (
	"fmt"
	"hash/crc32"
)

// Fingerprint identifies class-file content: the byte length of the class
// file plus a CRC32 (IEEE) checksum over it. Two classes with the same name
// but different content never share a fingerprint, which is what lets
// loader-independent ("unregistered") classes be matched safely.
type Fingerprint struct {
	Size     uint32
	Checksum uint32
}

// FingerprintOf computes the fingerprint of raw class-file bytes.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint{
		Size:     uint32(len(data)),
		Checksum: crc32.ChecksumIEEE(data),
	}
}

// IsZero reports whether the fingerprint is unset. Archived unregistered
// classes always carry a non-zero fingerprint.
func (fp Fingerprint) IsZero() bool {
	return fp.Size == 0 && fp.Checksum == 0
}

func (fp Fingerprint) String() string {
	return fmt.Sprintf("%d/0x%08X", fp.Size, fp.Checksum)
}
