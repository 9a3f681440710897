// Package store implements the single-file backing container: a fixed
// header, an embedded ring write-ahead log, append-only data segments,
// index regions and a trailing table-of-contents footer. All recovery
// state lives inside this one file; no sidecar files are ever created.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
)

// File format constants.
const (
	headerMagic   = "MVLT"
	formatVersion = uint16(0x0100)

	// HeaderSize is the fixed byte size of the file header.
	HeaderSize = 64

	// DefaultWALSize is the embedded WAL region size for new files.
	DefaultWALSize = uint64(1 << 20)
)

// Header is the fixed-size file header. It is rewritten in place on
// commit; everything after the WAL region is append-only.
type Header struct {
	Version          uint16
	CapacityBytes    uint64 // 0 means unbounded
	WALOffset        uint64
	WALSize          uint64
	WALCheckpointPos uint64
	WALSequence      uint64
	FooterOffset     uint64 // last committed footer; 0 before first commit
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.CapacityBytes)
	binary.LittleEndian.PutUint64(buf[16:24], h.WALOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.WALSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.WALCheckpointPos)
	binary.LittleEndian.PutUint64(buf[40:48], h.WALSequence)
	binary.LittleEndian.PutUint64(buf[48:56], h.FooterOffset)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize || string(buf[0:4]) != headerMagic {
		return Header{}, fmt.Errorf("not a memvault file: bad magic")
	}
	h := Header{
		Version:          binary.LittleEndian.Uint16(buf[4:6]),
		CapacityBytes:    binary.LittleEndian.Uint64(buf[8:16]),
		WALOffset:        binary.LittleEndian.Uint64(buf[16:24]),
		WALSize:          binary.LittleEndian.Uint64(buf[24:32]),
		WALCheckpointPos: binary.LittleEndian.Uint64(buf[32:40]),
		WALSequence:      binary.LittleEndian.Uint64(buf[40:48]),
		FooterOffset:     binary.LittleEndian.Uint64(buf[48:56]),
	}
	if h.Version != formatVersion {
		return Header{}, fmt.Errorf("unsupported format version %#04x", h.Version)
	}
	if h.WALSize == 0 {
		return Header{}, fmt.Errorf("invalid header: wal size must be non-zero")
	}
	return h, nil
}

func writeHeader(f *os.File, h Header) error {
	if _, err := f.WriteAt(h.marshal(), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func readHeader(f *os.File) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return unmarshalHeader(buf)
}
