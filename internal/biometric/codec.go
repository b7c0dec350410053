package biometric

import (
	"encoding/binary"
	"math"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
)

// Blob layout: [version u8][count u32 LE][count x float64 LE].
const (
	blobVersion    byte = 1
	blobHeaderSize      = 1 + 4
)

// Encode serializes an embedding into the versioned blob stored per student.
func Encode(e Embedding) []byte {
	buf := make([]byte, blobHeaderSize+8*len(e))
	buf[0] = blobVersion
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(e)))
	for i, v := range e {
		binary.LittleEndian.PutUint64(buf[blobHeaderSize+8*i:], math.Float64bits(v))
	}
	return buf
}

// Decode parses a blob produced by Encode and checks it against the
// expected dimension. Truncated, padded or foreign blobs are rejected.
func Decode(b []byte, dim int) (Embedding, error) {
	if len(b) < blobHeaderSize {
		return nil, apperr.New(apperr.KindInvalidEmbedding, "invalid embedding: blob too short")
	}
	if b[0] != blobVersion {
		return nil, apperr.Errorf(apperr.KindInvalidEmbedding, "invalid embedding: unsupported blob version %d", b[0])
	}
	n := int(binary.LittleEndian.Uint32(b[1:5]))
	if len(b) != blobHeaderSize+8*n {
		return nil, apperr.Errorf(apperr.KindInvalidEmbedding, "invalid embedding: blob declares %d components but holds %d bytes", n, len(b)-blobHeaderSize)
	}
	e := make(Embedding, n)
	for i := range e {
		e[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[blobHeaderSize+8*i:]))
	}
	if err := e.Validate(dim); err != nil {
		return nil, err
	}
	return e, nil
}
