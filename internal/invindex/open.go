package invindex

import (
	"github.com/myscale/sparse-index/internal/directory"
	"github.com/myscale/sparse-index/internal/posting"
	"github.com/myscale/sparse-index/internal/segment"
	"github.com/myscale/sparse-index/internal/types"
)

// Reader is the common surface of SimpleReader and CompressedReader so
// callers above this package (the updater's merger, the reader package's
// snapshot) dispatch through one interface rather than switching on
// storage kind themselves.
type Reader interface {
	Meta() *SegmentMeta
	Posting(dim types.DimId) (posting.Iterator, bool)
	Close() error
}

// Open opens a segment's mmap layout, dispatching on compressed.
func Open(dir *directory.Directory, segID segment.Id, compressed bool) (Reader, error) {
	if compressed {
		return OpenCompressed(dir, segID)
	}
	return OpenSimple(dir, segID)
}
