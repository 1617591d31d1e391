package chunker

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNew_InvalidChunkSize(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int64
		wantErr   bool
	}{
		{name: "aligned chunk size", chunkSize: 4096, wantErr: false},
		{name: "large aligned chunk size", chunkSize: 8 * 1024 * 1024, wantErr: false},
		{name: "zero chunk size", chunkSize: 0, wantErr: true},
		{name: "negative chunk size", chunkSize: -4096, wantErr: true},
		{name: "unaligned chunk size", chunkSize: 5000, wantErr: true},
		{name: "below alignment unit", chunkSize: 1024, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d) error = %v, wantErr %v", tt.chunkSize, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidChunkSize) {
				t.Errorf("New(%d) error = %v, want ErrInvalidChunkSize", tt.chunkSize, err)
			}
		})
	}
}

func TestStream_Split(t *testing.T) {
	tests := []struct {
		name       string
		sourceLen  int
		chunkSize  int64
		wantChunks int
	}{
		{name: "empty source", sourceLen: 0, chunkSize: 4096, wantChunks: 1},
		{name: "smaller than one chunk", sourceLen: 100, chunkSize: 4096, wantChunks: 1},
		{name: "exactly one chunk", sourceLen: 4096, chunkSize: 4096, wantChunks: 1},
		{name: "one chunk plus remainder", sourceLen: 5000, chunkSize: 4096, wantChunks: 2},
		{name: "exact multiple", sourceLen: 3 * 4096, chunkSize: 4096, wantChunks: 3},
		{name: "multiple plus remainder", sourceLen: 3*4096 + 1, chunkSize: 4096, wantChunks: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := make([]byte, tt.sourceLen)
			for i := range source {
				source[i] = byte(i % 251)
			}

			c, err := New(tt.chunkSize)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			stream := c.Split(bytes.NewReader(source))
			var reassembled []byte
			ordinal := 0
			for {
				chunk, err := stream.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				if chunk.Ordinal != ordinal {
					t.Errorf("Next() ordinal = %d, want %d", chunk.Ordinal, ordinal)
				}
				if ordinal < tt.wantChunks-1 && int64(len(chunk.Data)) != tt.chunkSize {
					t.Errorf("chunk %d size = %d, want %d", ordinal, len(chunk.Data), tt.chunkSize)
				}
				reassembled = append(reassembled, chunk.Data...)
				ordinal++
			}

			if ordinal != tt.wantChunks {
				t.Errorf("Split() produced %d chunks, want %d", ordinal, tt.wantChunks)
			}
			if !bytes.Equal(reassembled, source) {
				t.Errorf("reassembled bytes differ from source")
			}
		})
	}
}

func TestStream_EmptySourceSingleZeroChunk(t *testing.T) {
	c, err := New(4096)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stream := c.Split(bytes.NewReader(nil))

	chunk, err := stream.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if chunk.Ordinal != 0 || len(chunk.Data) != 0 {
		t.Errorf("Next() = ordinal %d len %d, want ordinal 0 len 0", chunk.Ordinal, len(chunk.Data))
	}

	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("Next() after final chunk error = %v, want io.EOF", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestStream_SourceErrorPropagates(t *testing.T) {
	c, err := New(4096)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stream := c.Split(failingReader{})
	if _, err := stream.Next(); err == nil || err == io.EOF {
		t.Errorf("Next() error = %v, want source error", err)
	}
}
