package domain

import (
	"io"
	"strconv"
	"strings"
)

// ModFileSuffix is appended to a data file path to name its associated
// modification (deletion) file.
const ModFileSuffix = ".mods"

// FileResource describes one physical data file owned by a remote node.
//
// Path is the logical location of the file,
// "<storageGroup>/<partition>/<fileName>". MinVersion and MaxVersion bound
// the version lineage the file covers: a freshly closed file has
// MinVersion == MaxVersion, a compacted file spans the versions of its
// inputs. SourceNode is the node to fetch the bytes from.
type FileResource struct {
	Path       string
	MinVersion int64
	MaxVersion int64
	SourceNode string

	// WithModification is set when the remote file has an associated
	// modification file that must travel with it.
	WithModification bool
}

// SplitPath maps the resource path to its storage group, partition number
// and file name. Returns a PathError when the path does not have the
// expected three trailing segments.
func (r *FileResource) SplitPath() (storageGroup string, partition int64, fileName string, err error) {
	segments := strings.Split(r.Path, "/")
	if len(segments) < 3 {
		return "", 0, "", &PathError{Path: r.Path}
	}
	n := len(segments)
	storageGroup = segments[n-3]
	fileName = segments[n-1]
	if storageGroup == "" || fileName == "" {
		return "", 0, "", &PathError{Path: r.Path}
	}
	partition, perr := strconv.ParseInt(segments[n-2], 10, 64)
	if perr != nil || partition < 0 {
		return "", 0, "", &PathError{Path: r.Path}
	}
	return storageGroup, partition, fileName, nil
}

// ModPath returns the path of the associated modification file on the
// remote node.
func (r *FileResource) ModPath() string {
	return r.Path + ModFileSuffix
}

// WriteTo serializes the resource in its self-delimiting wire form.
func (r *FileResource) WriteTo(w io.Writer) error {
	if err := writeString(w, r.Path); err != nil {
		return err
	}
	if err := writeInt64(w, r.MinVersion); err != nil {
		return err
	}
	if err := writeInt64(w, r.MaxVersion); err != nil {
		return err
	}
	if err := writeString(w, r.SourceNode); err != nil {
		return err
	}
	return writeBool(w, r.WithModification)
}

// ReadFileResource reads one resource from r. Returns ErrTruncated if the
// stream ends mid-descriptor.
func ReadFileResource(r io.Reader) (*FileResource, error) {
	res := &FileResource{}
	var err error
	if res.Path, err = readString(r); err != nil {
		return nil, err
	}
	if res.MinVersion, err = readInt64(r); err != nil {
		return nil, err
	}
	if res.MaxVersion, err = readInt64(r); err != nil {
		return nil, err
	}
	if res.SourceNode, err = readString(r); err != nil {
		return nil, err
	}
	if res.WithModification, err = readBool(r); err != nil {
		return nil, err
	}
	return res, nil
}
