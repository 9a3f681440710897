package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
)

// Footer trailer: [magic 4][version 2][reserved 2][tocOffset u64]
// [tocLen u64][sha256 32][reserved 8] = 64 bytes. Written after the TOC
// bytes on every commit. Reopen scans backwards from the end of the file
// for the last trailer whose TOC checksum verifies.
const (
	footerMagic = "MVTC"
	footerSize  = 64
)

type footer struct {
	tocOffset uint64
	tocLen    uint64
	tocDigest [32]byte
}

func (ft footer) marshal() []byte {
	buf := make([]byte, footerSize)
	copy(buf[0:4], footerMagic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], ft.tocOffset)
	binary.LittleEndian.PutUint64(buf[16:24], ft.tocLen)
	copy(buf[24:56], ft.tocDigest[:])
	return buf
}

func unmarshalFooter(buf []byte) (footer, bool) {
	if len(buf) < footerSize || string(buf[0:4]) != footerMagic {
		return footer{}, false
	}
	if binary.LittleEndian.Uint16(buf[4:6]) != formatVersion {
		return footer{}, false
	}
	var ft footer
	ft.tocOffset = binary.LittleEndian.Uint64(buf[8:16])
	ft.tocLen = binary.LittleEndian.Uint64(buf[16:24])
	copy(ft.tocDigest[:], buf[24:56])
	return ft, true
}

// writeFooter appends the TOC bytes followed by the trailer at offset and
// returns the trailer's offset.
func writeFooter(f *os.File, offset int64, toc []byte) (int64, error) {
	if _, err := f.WriteAt(toc, offset); err != nil {
		return 0, fmt.Errorf("write toc: %w", err)
	}
	ft := footer{
		tocOffset: uint64(offset),
		tocLen:    uint64(len(toc)),
		tocDigest: sha256.Sum256(toc),
	}
	trailerOffset := offset + int64(len(toc))
	if _, err := f.WriteAt(ft.marshal(), trailerOffset); err != nil {
		return 0, fmt.Errorf("write footer: %w", err)
	}
	return trailerOffset, nil
}

// readFooterAt loads and verifies the trailer at the given offset.
func readFooterAt(f *os.File, offset int64) (*TOC, footer, error) {
	buf := make([]byte, footerSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, footer{}, fmt.Errorf("read footer: %w", err)
	}
	ft, ok := unmarshalFooter(buf)
	if !ok {
		return nil, footer{}, fmt.Errorf("invalid footer at offset %d", offset)
	}
	toc, err := loadTOC(f, ft)
	if err != nil {
		return nil, footer{}, err
	}
	return toc, ft, nil
}

func loadTOC(f *os.File, ft footer) (*TOC, error) {
	data := make([]byte, ft.tocLen)
	if _, err := f.ReadAt(data, int64(ft.tocOffset)); err != nil {
		return nil, fmt.Errorf("read toc: %w", err)
	}
	if sha256.Sum256(data) != ft.tocDigest {
		return nil, fmt.Errorf("toc checksum mismatch")
	}
	return unmarshalTOC(data)
}

// findLastValidFooter scans backwards from the end of the file for the
// most recent trailer whose TOC verifies. Used when the header's footer
// pointer is stale or damaged, typically after a crash mid-commit.
func findLastValidFooter(f *os.File, fileSize, dataStart int64) (*TOC, int64, bool) {
	// Fast path: trailer flush-left against end of file.
	if off := fileSize - footerSize; off >= dataStart {
		if toc, _, err := readFooterAt(f, off); err == nil {
			return toc, off, true
		}
	}

	// Slow path: slide a window backwards looking for the magic.
	const windowSize = 64 << 10
	end := fileSize
	for end > dataStart {
		start := end - windowSize
		if start < dataStart {
			start = dataStart
		}
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil {
			return nil, 0, false
		}
		for i := len(buf) - footerSize; i >= 0; i-- {
			if string(buf[i:i+4]) != footerMagic {
				continue
			}
			off := start + int64(i)
			if toc, _, err := readFooterAt(f, off); err == nil {
				return toc, off, true
			}
		}
		if start == dataStart {
			break
		}
		// Overlap windows so a trailer straddling the boundary is seen.
		end = start + footerSize - 1
	}
	return nil, 0, false
}
