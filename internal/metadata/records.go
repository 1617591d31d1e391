package metadata

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// StorageNode is a node that holds chunk replicas. IsActive is the
// operator flag: cleared by deactivation and sticky until an operator
// re-registers or updates the node. Capacity and heartbeat freshness are
// separate eligibility inputs, never folded into this flag.
type StorageNode struct {
	ID            string
	Name          string
	Host          string
	Port          int
	Capacity      int64
	Available     int64
	IsActive      bool
	LastHeartbeat time.Time
	CreatedAt     time.Time
}

func (n *StorageNode) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// File is an uploaded file. Content is addressed by Checksum; the record
// is unique per (Name, Checksum, OwnerID). Files are soft-deleted.
type File struct {
	ID          string
	Name        string
	Size        int64
	Checksum    string
	ContentType string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsDeleted   bool
	DeletedAt   *time.Time
}

func (f *File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

func (f *File) IsDocument() bool {
	for _, t := range []string{"text/", "application/pdf", "application/msword", "application/vnd.openxmlformats-"} {
		if strings.Contains(f.ContentType, t) {
			return true
		}
	}
	return false
}

func (f *File) IsArchive() bool {
	for _, t := range []string{"zip", "rar", "tar", "7z", "gz"} {
		if strings.Contains(f.ContentType, t) {
			return true
		}
	}
	return false
}

// FileType buckets the file by content type.
func (f *File) FileType() string {
	switch {
	case f.IsImage():
		return "image"
	case f.IsDocument():
		return "document"
	case f.IsArchive():
		return "archive"
	default:
		return "other"
	}
}

// HumanReadableSize formats Size for display.
func (f *File) HumanReadableSize() string {
	size := float64(f.Size)
	if size < 0 {
		return "0.00 B"
	}
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", size)
}

type ChunkStatus string

const (
	ChunkStatusUploading ChunkStatus = "uploading"
	ChunkStatusCompleted ChunkStatus = "completed"
	ChunkStatusCorrupted ChunkStatus = "corrupted"
	ChunkStatusDeleted   ChunkStatus = "deleted"
)

// Chunk is one replica of one ordinal of a file, stored on one node.
// Among all replicas of a (file, ordinal) at most one has IsPrimary set,
// and each replica lives on a distinct node.
type Chunk struct {
	ID             string
	FileID         string
	NodeID         string
	ObjectKey      string
	Ordinal        int
	Size           int64
	Checksum       string
	StoredChecksum string
	IsPrimary      bool
	Status         ChunkStatus
	LastVerifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *Chunk) IsCorrupted() bool {
	return c.Status == ChunkStatusCorrupted
}

// FileVersion is an immutable snapshot of a file's (size, checksum).
// Version numbers are gap-free per file, starting at 1.
type FileVersion struct {
	ID            string
	FileID        string
	VersionNumber int
	Size          int64
	Checksum      string
	CreatedAt     time.Time
	CreatedBy     string
	Notes         string
}
