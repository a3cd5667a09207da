// Package wire implements the inbound atom parser and outbound report
// codec of §6: a length-prefixed varint atom record on ingest, and a
// round-trip-stable binary report envelope on dump.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// fieldType tags a field's payload encoding on the wire; distinct from
// field.Kind so the wire format can evolve independently of the in-memory
// representation.
type fieldType byte

const (
	fieldTypeInt32 fieldType = iota
	fieldTypeInt64
	fieldTypeFloat
	fieldTypeString
	fieldTypeBlob
)

func kindToWire(k field.Kind) (fieldType, error) {
	switch k {
	case field.KindInt32:
		return fieldTypeInt32, nil
	case field.KindInt64:
		return fieldTypeInt64, nil
	case field.KindFloat:
		return fieldTypeFloat, nil
	case field.KindString:
		return fieldTypeString, nil
	case field.KindBlob:
		return fieldTypeBlob, nil
	default:
		return 0, fmt.Errorf("wire: unknown field kind %v", k)
	}
}

func wireToKind(t fieldType) (field.Kind, error) {
	switch t {
	case fieldTypeInt32:
		return field.KindInt32, nil
	case fieldTypeInt64:
		return field.KindInt64, nil
	case fieldTypeFloat:
		return field.KindFloat, nil
	case fieldTypeString:
		return field.KindString, nil
	case fieldTypeBlob:
		return field.KindBlob, nil
	default:
		return 0, fmt.Errorf("wire: unknown field type byte 0x%x", byte(t))
	}
}

// EncodeAtom serializes atom as a length-prefixed record: {tag_id (varint),
// source_uid (varint), elapsed_ns (varint), field_count (varint),
// fields...}; each field is {tag count (varint), one varint per ancestor
// tag, position (1 byte), type (1 byte), payload}.
func EncodeAtom(a field.Atom) []byte {
	var body bytes.Buffer
	putVarint(&body, int64(a.Tag))
	putVarint(&body, a.SourceUID)
	putVarint(&body, a.ElapsedNs)
	putVarint(&body, int64(len(a.Values)))
	for _, v := range a.Values {
		encodeField(&body, v)
	}

	var out bytes.Buffer
	putVarint(&out, int64(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func encodeField(w *bytes.Buffer, v field.Value) {
	putVarint(w, int64(len(v.Path.Tags)))
	for _, t := range v.Path.Tags {
		putVarint(w, int64(t))
	}
	w.WriteByte(byte(v.Path.Position))

	ft, err := kindToWire(v.Kind)
	if err != nil {
		// Encoding an atom with a value of unknown kind is a programming
		// error upstream (§7 category 5): fields are only ever constructed
		// through the field package's typed constructors.
		panic(err)
	}
	w.WriteByte(byte(ft))
	switch v.Kind {
	case field.KindInt32:
		putVarint(w, int64(v.Int32))
	case field.KindInt64:
		putVarint(w, v.Int64)
	case field.KindFloat:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Float))
		w.Write(b[:])
	case field.KindString:
		putVarint(w, int64(len(v.Str)))
		w.WriteString(v.Str)
	case field.KindBlob:
		putVarint(w, int64(len(v.Blob)))
		w.Write(v.Blob)
	}
}

// DecodeAtom reads exactly one length-prefixed atom record from r.
func DecodeAtom(r io.ByteReader) (field.Atom, error) {
	length, err := binary.ReadVarint(r)
	if err != nil {
		return field.Atom{}, err
	}
	buf := make([]byte, 0, length)
	for i := int64(0); i < length; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return field.Atom{}, fmt.Errorf("wire: short atom record: %w", err)
		}
		buf = append(buf, b)
	}
	br := bytes.NewReader(buf)

	tag, err := binary.ReadVarint(br)
	if err != nil {
		return field.Atom{}, err
	}
	sourceUID, err := binary.ReadVarint(br)
	if err != nil {
		return field.Atom{}, err
	}
	elapsedNs, err := binary.ReadVarint(br)
	if err != nil {
		return field.Atom{}, err
	}
	fieldCount, err := binary.ReadVarint(br)
	if err != nil {
		return field.Atom{}, err
	}

	values := make([]field.Value, 0, fieldCount)
	for i := int64(0); i < fieldCount; i++ {
		v, err := decodeField(br)
		if err != nil {
			return field.Atom{}, fmt.Errorf("wire: field %d: %w", i, err)
		}
		values = append(values, v)
	}
	return field.Atom{Tag: int32(tag), SourceUID: sourceUID, ElapsedNs: elapsedNs, Values: values}, nil
}

func decodeField(br *bytes.Reader) (field.Value, error) {
	tagCount, err := binary.ReadVarint(br)
	if err != nil {
		return field.Value{}, err
	}
	tags := make([]int32, tagCount)
	for i := range tags {
		t, err := binary.ReadVarint(br)
		if err != nil {
			return field.Value{}, err
		}
		tags[i] = int32(t)
	}
	posByte, err := br.ReadByte()
	if err != nil {
		return field.Value{}, err
	}
	typeByte, err := br.ReadByte()
	if err != nil {
		return field.Value{}, err
	}
	kind, err := wireToKind(fieldType(typeByte))
	if err != nil {
		return field.Value{}, err
	}

	v := field.Value{Path: field.Path{Tags: tags, Position: field.Position(posByte)}, Kind: kind}
	switch kind {
	case field.KindInt32:
		n, err := binary.ReadVarint(br)
		if err != nil {
			return field.Value{}, err
		}
		v.Int32 = int32(n)
	case field.KindInt64:
		n, err := binary.ReadVarint(br)
		if err != nil {
			return field.Value{}, err
		}
		v.Int64 = n
	case field.KindFloat:
		var b [8]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return field.Value{}, err
		}
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
	case field.KindString:
		n, err := binary.ReadVarint(br)
		if err != nil {
			return field.Value{}, err
		}
		strBuf := make([]byte, n)
		if _, err := io.ReadFull(br, strBuf); err != nil {
			return field.Value{}, err
		}
		v.Str = string(strBuf)
	case field.KindBlob:
		n, err := binary.ReadVarint(br)
		if err != nil {
			return field.Value{}, err
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(br, blob); err != nil {
			return field.Value{}, err
		}
		v.Blob = blob
	}
	return v, nil
}

func putVarint(w *bytes.Buffer, v int64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutVarint(b[:], v)
	w.Write(b[:n])
}
