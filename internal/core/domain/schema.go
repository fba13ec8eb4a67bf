package domain

import "io"

// SchemaEntry describes one timeseries schema. Path is the full timeseries
// path and is the identity of the entry; two entries with the same path are
// the same schema.
type SchemaEntry struct {
	Path        string
	DataType    byte
	Encoding    byte
	Compression byte
}

// WriteTo serializes the entry in its self-delimiting wire form.
func (s SchemaEntry) WriteTo(w io.Writer) error {
	if err := writeString(w, s.Path); err != nil {
		return err
	}
	if err := writeByte(w, s.DataType); err != nil {
		return err
	}
	if err := writeByte(w, s.Encoding); err != nil {
		return err
	}
	return writeByte(w, s.Compression)
}

// ReadSchemaEntry reads one entry from r. Returns ErrTruncated if the stream
// ends mid-descriptor.
func ReadSchemaEntry(r io.Reader) (SchemaEntry, error) {
	var s SchemaEntry
	var err error
	if s.Path, err = readString(r); err != nil {
		return s, err
	}
	if s.DataType, err = readByte(r); err != nil {
		return s, err
	}
	if s.Encoding, err = readByte(r); err != nil {
		return s, err
	}
	if s.Compression, err = readByte(r); err != nil {
		return s, err
	}
	return s, nil
}
