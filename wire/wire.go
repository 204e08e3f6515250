// Package wire implements the on-the-wire tuple codec: a u32 field count
// followed by, for each field, a u8 Kind tag and its canonical
// big-endian payload.
//
// Every write/read is wrapped with a brimutil.ChecksummedWriter /
// ChecksummedReader so silent bit-rot is caught at the point of use rather
// than trusted, applied around a framed message on a net.Conn instead of
// around a file, turning a corrupted message into ErrCorrupt instead of a
// garbled tuple.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/spaolacci/murmur3"
	"gopkg.in/gholt/brimutil.v1"

	"github.com/bodand/lindadb/value"
)

// checksumInterval is how many payload bytes brimutil's checksummed
// reader/writer covers with one running murmur3/32 checksum. Wire
// messages are small, so a single fixed interval covering the whole frame
// is enough.
const checksumInterval = 1 << 16

// ErrCorrupt is returned by Decoder.Decode when the checksummed reader
// detects a mismatch.
var ErrCorrupt = errors.New("wire: corrupt message")

// ErrUnknownKind is returned when a Kind tag on the wire isn't one this
// build understands.
var ErrUnknownKind = errors.New("wire: unknown value kind tag")

// Encoder writes Tuples to an underlying io.Writer, each framed with a
// brimutil checksum so the peer can detect corruption in transit.
type Encoder struct {
	w brimutil.ChecksummedWriter
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: brimutil.NewChecksummedWriter(w, checksumInterval, murmur3.New32)}
}

// Encode writes t as a length-prefixed frame: u32 field count, then per
// field a u8 Kind tag and its payload.
func (e *Encoder) Encode(t value.Tuple) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(t.Size()))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	for i := 0; i < t.Size(); i++ {
		if err := encodeField(e.w, t.At(i)); err != nil {
			return err
		}
	}
	return nil
}

func encodeField(w io.Writer, v value.Value) error {
	if _, err := w.Write([]byte{byte(v.Kind())}); err != nil {
		return err
	}
	switch v.Kind() {
	case value.KindInt16:
		return writeUint16(w, uint16(v.Int16()))
	case value.KindUint16:
		return writeUint16(w, v.Uint16())
	case value.KindInt32:
		return writeUint32(w, uint32(v.Int32()))
	case value.KindUint32:
		return writeUint32(w, v.Uint32())
	case value.KindInt64:
		return writeUint64(w, uint64(v.Int64()))
	case value.KindUint64:
		return writeUint64(w, v.Uint64())
	case value.KindFloat32:
		return writeFloat32(w, v.Float32())
	case value.KindFloat64:
		return writeFloat64(w, v.Float64())
	case value.KindString:
		return writeString(w, v.String_())
	case value.KindFnCall:
		fc := v.FnCall()
		if err := writeString(w, fc.Name); err != nil {
			return err
		}
		var argHdr [4]byte
		binary.BigEndian.PutUint32(argHdr[:], uint32(fc.Args.Size()))
		if _, err := w.Write(argHdr[:]); err != nil {
			return err
		}
		for i := 0; i < fc.Args.Size(); i++ {
			if err := encodeField(w, fc.Args.At(i)); err != nil {
				return err
			}
		}
		return nil
	case value.KindFnCallTag:
		return nil
	default:
		return ErrUnknownKind
	}
}

// Decoder reads Tuples previously written by an Encoder, off an underlying
// io.Reader wrapped in a brimutil checksummed reader.
type Decoder struct {
	r brimutil.ChecksummedReader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: brimutil.NewChecksummedReader(r, checksumInterval, murmur3.New32)}
}

// Decode reads one frame and reconstructs its Tuple. It returns
// ErrCorrupt, wrapped with the underlying checksum failure, if the frame's
// checksum doesn't match what was written.
func (d *Decoder) Decode() (value.Tuple, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return value.Tuple{}, translateReadErr(err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	fields := make([]value.Value, n)
	for i := range fields {
		v, err := decodeField(d.r)
		if err != nil {
			return value.Tuple{}, err
		}
		fields[i] = v
	}
	return value.NewTuple(fields...), nil
}

func decodeField(r io.Reader) (value.Value, error) {
	var kindByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return value.Value{}, translateReadErr(err)
	}
	switch value.Kind(kindByte[0]) {
	case value.KindInt16:
		u, err := readUint16(r)
		return value.NewInt16(int16(u)), err
	case value.KindUint16:
		u, err := readUint16(r)
		return value.NewUint16(u), err
	case value.KindInt32:
		u, err := readUint32(r)
		return value.NewInt32(int32(u)), err
	case value.KindUint32:
		u, err := readUint32(r)
		return value.NewUint32(u), err
	case value.KindInt64:
		u, err := readUint64(r)
		return value.NewInt64(int64(u)), err
	case value.KindUint64:
		u, err := readUint64(r)
		return value.NewUint64(u), err
	case value.KindFloat32:
		f, err := readFloat32(r)
		return value.NewFloat32(f), err
	case value.KindFloat64:
		f, err := readFloat64(r)
		return value.NewFloat64(f), err
	case value.KindString:
		s, err := readString(r)
		return value.NewString(s), err
	case value.KindFnCall:
		name, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		var argHdr [4]byte
		if _, err := io.ReadFull(r, argHdr[:]); err != nil {
			return value.Value{}, translateReadErr(err)
		}
		argc := binary.BigEndian.Uint32(argHdr[:])
		args := make([]value.Value, argc)
		for i := range args {
			args[i], err = decodeField(r)
			if err != nil {
				return value.Value{}, err
			}
		}
		return value.NewFnCall(name, args...), nil
	case value.KindFnCallTag:
		return value.NewFnCallTag(), nil
	default:
		return value.Value{}, ErrUnknownKind
	}
}

func translateReadErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	return errors.Join(ErrCorrupt, err)
}

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeFloat32(w io.Writer, v float32) error {
	return writeUint32(w, Float32bits(v))
}

func writeFloat64(w io.Writer, v float64) error {
	return writeUint64(w, Float64bits(v))
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, translateReadErr(err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, translateReadErr(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, translateReadErr(err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readFloat32(r io.Reader) (float32, error) {
	u, err := readUint32(r)
	return Float32frombits(u), err
}

func readFloat64(r io.Reader) (float64, error) {
	u, err := readUint64(r)
	return Float64frombits(u), err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", translateReadErr(err)
	}
	return string(buf), nil
}
