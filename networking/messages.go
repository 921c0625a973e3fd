package networking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"media_ingest/constants"
)

// initialPayloadBuffer caps the up-front allocation for a payload. The buffer
// grows as bytes arrive, so a header alone cannot claim its declared size.
const initialPayloadBuffer = 1 << 20

var (
	// ErrMalformed marks a request whose header fields are out of range or invalid.
	ErrMalformed = errors.New("malformed upload request")
	// ErrAborted marks a stream that ended before a field was fully read.
	ErrAborted = errors.New("upload aborted by peer")
)

// Header contains the fixed request fields preceding the payload
type Header struct {
	Name string
	Size int64
}

// Request is a fully read upload
type Request struct {
	Header
	Payload []byte
}

// Limits bounds what a receiver accepts before allocating buffers
type Limits struct {
	MaxName    int
	MaxPayload int64
}

// WriteHeader encodes nameLen, name and size in network byte order
func WriteHeader(w io.Writer, name string, size int64) error {
	nameBytes := []byte(name)
	buf := make([]byte, 0, 4+len(nameBytes)+8)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(len(nameBytes))))
	buf = append(buf, nameBytes...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(size))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteRequest encodes a complete upload request
func WriteRequest(w io.Writer, name string, payload []byte) error {
	if err := WriteHeader(w, name, int64(len(payload))); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// ReadHeader reads and validates the header fields
func ReadHeader(r io.Reader, limits Limits) (*Header, error) {
	var lenBuf [4]byte
	if err := readExact(r, lenBuf[:], "name length"); err != nil {
		return nil, err
	}
	nameLen := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if nameLen <= 0 || (limits.MaxName > 0 && int(nameLen) > limits.MaxName) {
		return nil, fmt.Errorf("%w: name length %d", ErrMalformed, nameLen)
	}

	nameBuf := make([]byte, nameLen)
	if err := readExact(r, nameBuf, "name"); err != nil {
		return nil, err
	}
	if !utf8.Valid(nameBuf) {
		return nil, fmt.Errorf("%w: name is not valid UTF-8", ErrMalformed)
	}
	name := string(nameBuf)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var sizeBuf [8]byte
	if err := readExact(r, sizeBuf[:], "size"); err != nil {
		return nil, err
	}
	size := int64(binary.BigEndian.Uint64(sizeBuf[:]))
	if size < 0 || (limits.MaxPayload > 0 && size > limits.MaxPayload) {
		return nil, fmt.Errorf("%w: payload size %d", ErrMalformed, size)
	}

	return &Header{Name: name, Size: size}, nil
}

// ReadPayload reads exactly size bytes. The buffer doubles as data arrives and
// never grows past size.
func ReadPayload(r io.Reader, size int64) ([]byte, error) {
	payload := make([]byte, 0, min(size, initialPayloadBuffer))
	for int64(len(payload)) < size {
		if len(payload) == cap(payload) {
			grown := make([]byte, len(payload), min(size, 2*int64(cap(payload))))
			copy(grown, payload)
			payload = grown
		}
		n, err := r.Read(payload[len(payload):cap(payload)])
		payload = payload[:len(payload)+n]
		if err != nil {
			if int64(len(payload)) == size {
				break
			}
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: reading payload: got %d of %d bytes: %w",
					ErrAborted, len(payload), size, io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return payload, nil
}

// ReadRequest reads a header followed by its payload
func ReadRequest(r io.Reader, limits Limits) (*Request, error) {
	header, err := ReadHeader(r, limits)
	if err != nil {
		return nil, err
	}
	payload, err := ReadPayload(r, header.Size)
	if err != nil {
		return nil, err
	}
	return &Request{Header: *header, Payload: payload}, nil
}

// ValidateName rejects names that could escape the flat storage directory or
// collide with the hidden .name.part files used for in-progress writes.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		(strings.HasPrefix(name, ".") && strings.HasSuffix(name, constants.PART_SUFFIX)) {
		return fmt.Errorf("%w: invalid file name %q", ErrMalformed, name)
	}
	return nil
}

func readExact(r io.Reader, buf []byte, field string) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: reading %s: %w", ErrAborted, field, err)
		}
		return fmt.Errorf("read %s: %w", field, err)
	}
	return nil
}
