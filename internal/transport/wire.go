package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout, all integers big-endian:
//
//	request:  magic uint32 | op uint8 | body
//	response: status uint8 | payloadLen int32 | payload
//
// The body depends on the op:
//
//	opReadFile:    pathLen uint16 | path | offset int64 | length int32
//	opInstallSlot: slot uint32 | snapLen uint32 | snapshot
//
// payload is file data for statusOK and an error string for statusError.
const (
	protocolMagic uint32 = 0x515A4652 // "QZFR"

	opReadFile    byte = 1
	opInstallSlot byte = 2

	statusOK    byte = 0
	statusError byte = 1

	// MaxChunkSize bounds a single read so a misbehaving peer cannot force
	// an arbitrary allocation.
	MaxChunkSize = 4 << 20

	// MaxSnapshotSize bounds a serialized slot snapshot. Snapshots carry
	// descriptors, not file contents, so this is generous.
	MaxSnapshotSize = 64 << 20
)

// ErrBadFrame reports a malformed or foreign frame.
var ErrBadFrame = errors.New("transport: bad frame")

// RemoteError is an error reported by the serving node.
type RemoteError struct {
	Msg string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return "transport: remote error: " + e.Msg
}

// FileReader is the remote read-file capability consumed by the fetcher.
// An empty result signals EOF. Node is a cluster node id, resolved to a
// transfer address internally.
type FileReader interface {
	ReadFile(ctx context.Context, node, path string, offset int64, length int32) ([]byte, error)
	Close() error
}

// SnapshotPusher hands a serialized slot snapshot to the node taking the
// slot over, which starts its catch-up. Both clients implement it.
type SnapshotPusher interface {
	InstallSlot(ctx context.Context, node string, slot uint32, snapshot []byte) error
}

// AddressResolver maps a node id to its file-transfer address.
type AddressResolver interface {
	Resolve(nodeID string) (addr string, ok bool)
}

// ErrUnknownNode reports a node id the resolver cannot map to an address.
var ErrUnknownNode = errors.New("transport: unknown node")

func writeReadFileRequest(w io.Writer, path string, offset int64, length int32) error {
	if len(path) > int(^uint16(0)) {
		return fmt.Errorf("%w: path too long", ErrBadFrame)
	}
	buf := make([]byte, 0, 4+1+2+len(path)+8+4)
	buf = binary.BigEndian.AppendUint32(buf, protocolMagic)
	buf = append(buf, opReadFile)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(path)))
	buf = append(buf, path...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(offset))
	buf = binary.BigEndian.AppendUint32(buf, uint32(length))
	_, err := w.Write(buf)
	return err
}

func writeInstallRequest(w io.Writer, slot uint32, snapshot []byte) error {
	if len(snapshot) > MaxSnapshotSize {
		return fmt.Errorf("%w: snapshot too large", ErrBadFrame)
	}
	head := make([]byte, 0, 4+1+4+4)
	head = binary.BigEndian.AppendUint32(head, protocolMagic)
	head = append(head, opInstallSlot)
	head = binary.BigEndian.AppendUint32(head, slot)
	head = binary.BigEndian.AppendUint32(head, uint32(len(snapshot)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	_, err := w.Write(snapshot)
	return err
}

// readRequestOp consumes the frame magic and returns the op.
func readRequestOp(r io.Reader) (byte, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, err
	}
	if binary.BigEndian.Uint32(head[:4]) != protocolMagic {
		return 0, ErrBadFrame
	}
	switch head[4] {
	case opReadFile, opInstallSlot:
		return head[4], nil
	default:
		return 0, fmt.Errorf("%w: op %d", ErrBadFrame, head[4])
	}
}

func readReadFileBody(r io.Reader) (path string, offset int64, length int32, err error) {
	var lenBuf [2]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", 0, 0, err
	}
	pathBuf := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err = io.ReadFull(r, pathBuf); err != nil {
		return "", 0, 0, err
	}
	var tail [12]byte
	if _, err = io.ReadFull(r, tail[:]); err != nil {
		return "", 0, 0, err
	}
	offset = int64(binary.BigEndian.Uint64(tail[:8]))
	length = int32(binary.BigEndian.Uint32(tail[8:12]))
	if offset < 0 || length < 0 || length > MaxChunkSize {
		return "", 0, 0, ErrBadFrame
	}
	return string(pathBuf), offset, length, nil
}

func readInstallBody(r io.Reader) (slot uint32, snapshot []byte, err error) {
	var head [8]byte
	if _, err = io.ReadFull(r, head[:]); err != nil {
		return 0, nil, err
	}
	slot = binary.BigEndian.Uint32(head[:4])
	snapLen := binary.BigEndian.Uint32(head[4:8])
	if snapLen > MaxSnapshotSize {
		return 0, nil, ErrBadFrame
	}
	snapshot = make([]byte, snapLen)
	if _, err = io.ReadFull(r, snapshot); err != nil {
		return 0, nil, err
	}
	return slot, snapshot, nil
}

func writeDataResponse(w io.Writer, data []byte) error {
	head := make([]byte, 0, 5)
	head = append(head, statusOK)
	head = binary.BigEndian.AppendUint32(head, uint32(len(data)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeErrorResponse(w io.Writer, msg string) error {
	head := make([]byte, 0, 5)
	head = append(head, statusError)
	head = binary.BigEndian.AppendUint32(head, uint32(len(msg)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	_, err := io.WriteString(w, msg)
	return err
}

func readResponse(r io.Reader) ([]byte, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint32(head[1:5])
	if payloadLen > MaxChunkSize {
		return nil, ErrBadFrame
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	switch head[0] {
	case statusOK:
		return payload, nil
	case statusError:
		return nil, &RemoteError{Msg: string(payload)}
	default:
		return nil, ErrBadFrame
	}
}
