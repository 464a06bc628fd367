package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/bloom"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

// maxDecodedSize caps the decompressed body so a hostile dump cannot exhaust
// memory.
const maxDecodedSize = 4 << 30

type encodeOptions struct {
	compress bool
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

// WithCompression zstd-compresses the dump body.
func WithCompression(enabled bool) EncodeOption {
	return func(o *encodeOptions) { o.compress = enabled }
}

type decodeOptions struct {
	tok *tokenizer.Tokenizer
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

// WithTokenizer sets the tokenizer of the restored store. Dumps do not record
// tokenizer options.
func WithTokenizer(tok *tokenizer.Tokenizer) DecodeOption {
	return func(o *decodeOptions) { o.tok = tok }
}

// Encode serialises s.
func Encode(s *index.Store, opts ...EncodeOption) ([]byte, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if uint64(s.Len()) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d documents exceed the dump limit", apperrors.ErrInvalidInput, s.Len())
	}
	params := s.Params()
	if err := bloom.Validate(params.Bits, params.Hashes); err != nil {
		return nil, err
	}
	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Bits:      uint64(params.Bits),
		Hashes:    uint32(params.Hashes),
		Documents: uint32(s.Len()),
	}
	if o.compress {
		header.Flags |= flagCompressed
	}
	headerBytes := header.marshal()

	bitsLen := bloom.ByteLen(params.Bits)
	var body bytes.Buffer
	scratch := make([]byte, 4)
	for e := range s.Entries() {
		if uint64(len(e.DocID)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: document id of %d bytes", apperrors.ErrInvalidInput, len(e.DocID))
		}
		binary.LittleEndian.PutUint32(scratch, uint32(len(e.DocID)))
		body.Write(scratch)
		body.WriteString(e.DocID)
		binary.LittleEndian.PutUint32(scratch, uint32(bitsLen))
		body.Write(scratch)
		body.Write(e.Filter.Bytes())
	}

	checksum := crc32.NewIEEE()
	checksum.Write(headerBytes)
	checksum.Write(body.Bytes())

	payload := body.Bytes()
	if o.compress {
		enc, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		enc.Close()
	}

	out := make([]byte, 0, HeaderSize+len(payload)+FooterSize)
	out = append(out, headerBytes...)
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, checksum.Sum32())
	return out, nil
}

// Decode parses a dump into a new store. Any malformation yields
// ErrCorruptData; an unknown format version yields ErrVersionMismatch, which
// also matches ErrCorruptData.
func Decode(data []byte, opts ...DecodeOption) (*index.Store, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	header, err := Info(data)
	if err != nil {
		return nil, err
	}

	payload := data[HeaderSize : len(data)-FooterSize]
	if header.Compressed {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing body: %v", apperrors.ErrCorruptData, err)
		}
	}

	checksum := crc32.NewIEEE()
	checksum.Write(data[:HeaderSize])
	checksum.Write(payload)
	if want := binary.LittleEndian.Uint32(data[len(data)-FooterSize:]); checksum.Sum32() != want {
		return nil, fmt.Errorf("%w: checksum %08x, footer says %08x", apperrors.ErrCorruptData, checksum.Sum32(), want)
	}

	params := index.Params{Bits: uint(header.Bits), Hashes: uint(header.Hashes)}
	bitsLen := uint64(bloom.ByteLen(params.Bits))
	if header.Documents > 0 && (bitsLen > uint64(len(payload)) || uint64(header.Documents)*(8+bitsLen) > uint64(len(payload))) {
		return nil, fmt.Errorf("%w: %d documents of %d bytes cannot fit in a %d byte body",
			apperrors.ErrCorruptData, header.Documents, bitsLen, len(payload))
	}

	var storeOpts []index.Option
	if o.tok != nil {
		storeOpts = append(storeOpts, index.WithTokenizer(o.tok))
	}
	store, err := index.NewStore(params, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptData, err)
	}

	r := reader{buf: payload}
	for i := uint32(0); i < header.Documents; i++ {
		id, err := r.chunk("document id")
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		docID := string(id)
		if _, dup := store.Get(docID); dup {
			return nil, fmt.Errorf("%w: duplicate document %q", apperrors.ErrCorruptData, docID)
		}
		bits, err := r.chunk("bit array")
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", docID, err)
		}
		if uint64(len(bits)) != bitsLen {
			return nil, fmt.Errorf("%w: entry %q declares %d bit bytes, want %d",
				apperrors.ErrCorruptData, docID, len(bits), bitsLen)
		}
		filter, err := bloom.FromBytes(bits, params.Bits, params.Hashes)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", docID, err)
		}
		if err := store.Insert(&index.Entry{DocID: docID, Filter: filter}); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", apperrors.ErrCorruptData, docID, err)
		}
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d documents", apperrors.ErrCorruptData, r.remaining(), header.Documents)
	}
	return store, nil
}

// reader walks a length-prefixed body.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) chunk(what string) ([]byte, error) {
	if r.remaining() < 4 {
		return nil, fmt.Errorf("%w: truncated %s length", apperrors.ErrCorruptData, what)
	}
	n := uint64(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %s of %d bytes exceeds remaining %d", apperrors.ErrCorruptData, what, n, r.remaining())
	}
	out := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return out, nil
}
