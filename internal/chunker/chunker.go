package chunker

import "io"

// AlignmentUnit is the unit chunk sizes must be a multiple of.
const AlignmentUnit = 4096

type Chunk struct {
	Ordinal int
	Data    []byte
}

// Chunker splits byte streams into fixed-size chunks with a trailing
// remainder. A zero-length source yields exactly one zero-length chunk.
type Chunker struct {
	chunkSize int64
}

func New(chunkSize int64) (*Chunker, error) {
	if chunkSize <= 0 || chunkSize%AlignmentUnit != 0 {
		return nil, ErrInvalidChunkSize
	}
	return &Chunker{chunkSize: chunkSize}, nil
}

func (c *Chunker) ChunkSize() int64 {
	return c.chunkSize
}

// Split returns a lazy stream over r. Chunks are produced one at a time;
// the source is never buffered beyond a single chunk. The stream is not
// rewindable — restarting requires re-reading the source.
func (c *Chunker) Split(r io.Reader) *Stream {
	return &Stream{r: r, chunkSize: c.chunkSize}
}

type Stream struct {
	r         io.Reader
	chunkSize int64
	ordinal   int
	done      bool
}

// Next returns the next chunk in ordinal order, or io.EOF after the final
// chunk. Read errors from the source propagate unchanged and terminate
// the stream.
func (s *Stream) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.r, buf)
	switch err {
	case nil:
		chunk := Chunk{Ordinal: s.ordinal, Data: buf}
		s.ordinal++
		return chunk, nil
	case io.ErrUnexpectedEOF:
		// Trailing remainder.
		s.done = true
		chunk := Chunk{Ordinal: s.ordinal, Data: buf[:n]}
		s.ordinal++
		return chunk, nil
	case io.EOF:
		s.done = true
		if s.ordinal == 0 {
			// Empty source: a single zero-length chunk.
			s.ordinal++
			return Chunk{Ordinal: 0, Data: []byte{}}, nil
		}
		return Chunk{}, io.EOF
	default:
		s.done = true
		return Chunk{}, err
	}
}
