// Package dump converts an index store to and from its durable byte form.
//
// A dump is self-describing: the header records the format version, the
// filter geometry and the document count, so a dump written under one
// configuration is never read under another. Layout, little-endian:
//
//	magic    uint32   "BLMD"
//	version  uint32
//	flags    uint32   bit 0: body is zstd-compressed
//	bits     uint64   m
//	hashes   uint32   k
//	count    uint32   documents
//	body     count x { idLen uint32, id, bitsLen uint32, bits }
//	crc32    uint32   IEEE over header and uncompressed body
//
// Decoding is all-or-nothing: it returns a new store or an error, never a
// partially filled store.
package dump

import (
	"encoding/binary"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/bloom"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x424C4D44
	FormatVersion uint32 = 1
	HeaderSize    int    = 28
	FooterSize    int    = 4

	flagCompressed uint32 = 1 << 0
	knownFlags            = flagCompressed
)

// Header is the fixed-size prefix of every dump.
type Header struct {
	Magic      uint32 `json:"-"`
	Version    uint32 `json:"version"`
	Flags      uint32 `json:"flags"`
	Bits       uint64 `json:"bits"`
	Hashes     uint32 `json:"hashes"`
	Documents  uint32 `json:"documents"`
	Compressed bool   `json:"compressed"`
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint64(buf[12:20], h.Bits)
	binary.LittleEndian.PutUint32(buf[20:24], h.Hashes)
	binary.LittleEndian.PutUint32(buf[24:28], h.Documents)
	return buf
}

// Info parses and validates the header of a dump without decoding its body.
func Info(data []byte) (Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return Header{}, fmt.Errorf("%w: dump is %d bytes, shorter than header and footer", apperrors.ErrCorruptData, len(data))
	}
	h := Header{
		Magic:     binary.LittleEndian.Uint32(data[0:4]),
		Version:   binary.LittleEndian.Uint32(data[4:8]),
		Flags:     binary.LittleEndian.Uint32(data[8:12]),
		Bits:      binary.LittleEndian.Uint64(data[12:20]),
		Hashes:    binary.LittleEndian.Uint32(data[20:24]),
		Documents: binary.LittleEndian.Uint32(data[24:28]),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptData, h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: version %d, supported %d", apperrors.ErrVersionMismatch, h.Version, FormatVersion)
	}
	if h.Flags&^knownFlags != 0 {
		return Header{}, fmt.Errorf("%w: unknown flags %#x", apperrors.ErrCorruptData, h.Flags)
	}
	if h.Bits == 0 || h.Hashes == 0 {
		return Header{}, fmt.Errorf("%w: invalid filter geometry m=%d k=%d", apperrors.ErrCorruptData, h.Bits, h.Hashes)
	}
	if h.Bits > uint64(bloom.MaxBits) || uint64(h.Hashes) > uint64(bloom.MaxHashes) {
		return Header{}, fmt.Errorf("%w: filter geometry m=%d k=%d beyond limits m<=%d k<=%d",
			apperrors.ErrCorruptData, h.Bits, h.Hashes, bloom.MaxBits, bloom.MaxHashes)
	}
	h.Compressed = h.Flags&flagCompressed != 0
	return h, nil
}
