package cose

import (
	"errors"
	"fmt"
)

// Major types of the compact binary map encoding.
const (
	majorUnsigned = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
)

var errTruncated = errors.New("truncated item")

// Reader walks a byte slice one data item at a time. It understands the
// small subset of the encoding that authenticator payloads use: integers,
// byte strings, text strings, arrays and maps with definite lengths.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) remaining() int {
	return len(r.buf) - r.pos
}

// head reads the initial byte plus any extended length argument.
func (r *Reader) head() (major byte, arg uint64, err error) {
	if r.remaining() < 1 {
		return 0, 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	major = b >> 5
	info := b & 0x1f

	switch {
	case info < 24:
		return major, uint64(info), nil
	case info == 24:
		arg, err = r.readUint(1)
		return major, arg, err
	case info == 25:
		arg, err = r.readUint(2)
		return major, arg, err
	case info == 26:
		arg, err = r.readUint(4)
		return major, arg, err
	case info == 27:
		arg, err = r.readUint(8)
		return major, arg, err
	default:
		return 0, 0, fmt.Errorf("unsupported additional info %d", info)
	}
}

func (r *Reader) readUint(n int) (uint64, error) {
	if r.remaining() < n {
		return 0, errTruncated
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(r.buf[r.pos+i])
	}
	r.pos += n
	return v, nil
}

// ReadInt reads a signed integer item (major type 0 or 1).
func (r *Reader) ReadInt() (int64, error) {
	major, arg, err := r.head()
	if err != nil {
		return 0, err
	}
	switch major {
	case majorUnsigned:
		return int64(arg), nil
	case majorNegative:
		return -1 - int64(arg), nil
	default:
		return 0, fmt.Errorf("expected integer, got major type %d", major)
	}
}

// ReadBytes reads a definite-length byte string item.
func (r *Reader) ReadBytes() ([]byte, error) {
	major, arg, err := r.head()
	if err != nil {
		return nil, err
	}
	if major != majorBytes {
		return nil, fmt.Errorf("expected byte string, got major type %d", major)
	}
	if uint64(r.remaining()) < arg {
		return nil, errTruncated
	}
	out := r.buf[r.pos : r.pos+int(arg)]
	r.pos += int(arg)
	return out, nil
}

// ReadText reads a definite-length text string item.
func (r *Reader) ReadText() (string, error) {
	major, arg, err := r.head()
	if err != nil {
		return "", err
	}
	if major != majorText {
		return "", fmt.Errorf("expected text string, got major type %d", major)
	}
	if uint64(r.remaining()) < arg {
		return "", errTruncated
	}
	out := string(r.buf[r.pos : r.pos+int(arg)])
	r.pos += int(arg)
	return out, nil
}

// ReadMapLen reads a map header and returns the entry count.
func (r *Reader) ReadMapLen() (int, error) {
	major, arg, err := r.head()
	if err != nil {
		return 0, err
	}
	if major != majorMap {
		return 0, fmt.Errorf("expected map, got major type %d", major)
	}
	return int(arg), nil
}

// ItemLength returns the encoded length of the single data item at the
// start of buf. Used to split a trailing key map off a larger binary blob.
func ItemLength(buf []byte) (int, error) {
	r := NewReader(buf)
	if err := r.Skip(); err != nil {
		return 0, err
	}
	return r.pos, nil
}

// Skip consumes one data item of any supported shape.
func (r *Reader) Skip() error {
	major, arg, err := r.head()
	if err != nil {
		return err
	}
	switch major {
	case majorUnsigned, majorNegative:
		return nil
	case majorBytes, majorText:
		if uint64(r.remaining()) < arg {
			return errTruncated
		}
		r.pos += int(arg)
		return nil
	case majorArray:
		for i := uint64(0); i < arg; i++ {
			if err := r.Skip(); err != nil {
				return err
			}
		}
		return nil
	case majorMap:
		for i := uint64(0); i < 2*arg; i++ {
			if err := r.Skip(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported major type %d", major)
	}
}
