package catchup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
)

// Snapshot is one slot's replicated state at a point in the replication
// history. It carries the last log position applied on the producing node so
// the receiver can reason about how far behind it is. Concrete variants are
// immutable once received and consumed exactly once by their installer.
type Snapshot interface {
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
	SetLastLog(index, term uint64)
	LastLogIndex() uint64
	LastLogTerm() uint64

	// NewInstaller returns the installer variant for this snapshot kind.
	NewInstaller(cfg InstallerConfig) *Installer
}

// FileSnapshot is the file-based Snapshot variant: the schemas and data file
// descriptors of one slot. Schemas are a set keyed by path; data files keep
// their source order, which integration and dedup reasoning depend on.
type FileSnapshot struct {
	lastLogIndex uint64
	lastLogTerm  uint64

	schemas     []domain.SchemaEntry
	schemaPaths map[string]struct{}
	files       []*domain.FileResource
}

// NewFileSnapshot creates an empty file snapshot.
func NewFileSnapshot() *FileSnapshot {
	return &FileSnapshot{
		schemaPaths: make(map[string]struct{}),
	}
}

// SetLastLog records the last applied log position of the producing node.
func (s *FileSnapshot) SetLastLog(index, term uint64) {
	s.lastLogIndex = index
	s.lastLogTerm = term
}

// LastLogIndex returns the producing node's last applied log index.
func (s *FileSnapshot) LastLogIndex() uint64 { return s.lastLogIndex }

// LastLogTerm returns the producing node's last applied log term.
func (s *FileSnapshot) LastLogTerm() uint64 { return s.lastLogTerm }

// AddSchema adds a schema to the snapshot. A path already present is left
// unchanged.
func (s *FileSnapshot) AddSchema(schema domain.SchemaEntry) {
	if s.schemaPaths == nil {
		s.schemaPaths = make(map[string]struct{})
	}
	if _, ok := s.schemaPaths[schema.Path]; ok {
		return
	}
	s.schemaPaths[schema.Path] = struct{}{}
	s.schemas = append(s.schemas, schema)
}

// AddFile appends a file descriptor. No dedup happens at this layer.
func (s *FileSnapshot) AddFile(res *domain.FileResource) {
	s.files = append(s.files, res)
}

// Schemas returns the snapshot's schemas.
func (s *FileSnapshot) Schemas() []domain.SchemaEntry { return s.schemas }

// Files returns the snapshot's data file descriptors in source order.
func (s *FileSnapshot) Files() []*domain.FileResource { return s.files }

// Serialize writes the snapshot in its wire form:
//
//	int32 schemaCount | schemas | int32 fileCount | files
//
// with all integers big-endian and each descriptor self-delimiting.
func (s *FileSnapshot) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(s.schemas)))
	buf.Write(count[:])
	for _, schema := range s.schemas {
		if err := schema.WriteTo(&buf); err != nil {
			return nil, err
		}
	}

	binary.BigEndian.PutUint32(count[:], uint32(len(s.files)))
	buf.Write(count[:])
	for _, res := range s.files {
		if err := res.WriteTo(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Deserialize replaces the snapshot's content with the wire form in data.
// A truncated or malformed payload fails the whole operation with
// ErrMalformedSnapshot; there is no partial recovery.
func (s *FileSnapshot) Deserialize(data []byte) error {
	r := bytes.NewReader(data)

	schemaCount, err := readCount(r)
	if err != nil {
		return err
	}
	schemaCap := allocHint(schemaCount, r.Len(), minSchemaWire)
	schemas := make([]domain.SchemaEntry, 0, schemaCap)
	paths := make(map[string]struct{}, schemaCap)
	for i := int32(0); i < schemaCount; i++ {
		schema, err := domain.ReadSchemaEntry(r)
		if err != nil {
			return fmt.Errorf("%w: schema %d: %v", ErrMalformedSnapshot, i, err)
		}
		if _, ok := paths[schema.Path]; ok {
			continue
		}
		paths[schema.Path] = struct{}{}
		schemas = append(schemas, schema)
	}

	fileCount, err := readCount(r)
	if err != nil {
		return err
	}
	files := make([]*domain.FileResource, 0, allocHint(fileCount, r.Len(), minFileWire))
	for i := int32(0); i < fileCount; i++ {
		res, err := domain.ReadFileResource(r)
		if err != nil {
			return fmt.Errorf("%w: file %d: %v", ErrMalformedSnapshot, i, err)
		}
		files = append(files, res)
	}

	s.schemas = schemas
	s.schemaPaths = paths
	s.files = files
	return nil
}

// Minimum wire sizes of the self-delimiting descriptors.
const (
	minSchemaWire = 5  // path length prefix + three property bytes
	minFileWire   = 21 // two string prefixes + two versions + flag
)

// allocHint bounds pre-allocation for a peer-supplied count by what the
// remaining payload can possibly hold; a lying count then fails entry by
// entry instead of allocating up front.
func allocHint(count int32, remaining, minSize int) int {
	if max := remaining / minSize; int(count) > max {
		return max
	}
	return int(count)
}

func readCount(r *bytes.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated count", ErrMalformedSnapshot)
	}
	count := int32(binary.BigEndian.Uint32(buf[:]))
	if count < 0 {
		return 0, fmt.Errorf("%w: negative count", ErrMalformedSnapshot)
	}
	return count, nil
}

// Equal reports structural equality: same schema set and same data files in
// the same order. Last log positions do not participate.
func (s *FileSnapshot) Equal(other *FileSnapshot) bool {
	if other == nil {
		return false
	}
	if len(s.schemas) != len(other.schemas) || len(s.files) != len(other.files) {
		return false
	}
	bySchema := make(map[string]domain.SchemaEntry, len(other.schemas))
	for _, schema := range other.schemas {
		bySchema[schema.Path] = schema
	}
	for _, schema := range s.schemas {
		got, ok := bySchema[schema.Path]
		if !ok || got != schema {
			return false
		}
	}
	for i, res := range s.files {
		if *res != *other.files[i] {
			return false
		}
	}
	return true
}

// NewInstaller implements Snapshot.
func (s *FileSnapshot) NewInstaller(cfg InstallerConfig) *Installer {
	return NewInstaller(cfg)
}

// String implements fmt.Stringer for log-level identity.
func (s *FileSnapshot) String() string {
	return fmt.Sprintf("FileSnapshot{schemas=%d, files=%d, lastLogIndex=%d, lastLogTerm=%d}",
		len(s.schemas), len(s.files), s.lastLogIndex, s.lastLogTerm)
}
