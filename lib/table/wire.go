package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// EncodeColumnar serializes a batch in the columnar layout the dockers read:
//
//	{"<column>": {"<row index>": <value>, ...}, ...}
//
// Columns and row indexes keep the batch's order.
func EncodeColumnar(b Batch) ([]byte, error) {
	var buf bytes.Buffer
	err := writeColumnar(&buf, b)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeEnveloped is EncodeColumnar nested one level under `key`, as in
// {"coordinates": {...}}.
func EncodeEnveloped(key string, b Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	err := writeKey(&buf, key)
	if err != nil {
		return nil, err
	}
	err = writeColumnar(&buf, b)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	encoded, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	buf.WriteByte(':')
	return nil
}

func writeColumnar(buf *bytes.Buffer, b Batch) error {
	buf.WriteByte('{')
	for ci, c := range b.Columns {
		if ci > 0 {
			buf.WriteByte(',')
		}
		err := writeKey(buf, c)
		if err != nil {
			return err
		}
		buf.WriteByte('{')
		for ri, r := range b.Rows {
			if ri > 0 {
				buf.WriteByte(',')
			}
			err = writeKey(buf, strconv.Itoa(ri))
			if err != nil {
				return err
			}
			value, err := json.Marshal(Scalar(r[c]))
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", c, ri, err)
			}
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

var ErrNotRecords = errors.New("expected a JSON array of objects")

// DecodeRecords parses the records layout the dockers answer with:
//
//	[{"<column>": <value>, ...}, ...]
//
// Column order follows the order keys are first seen in. Integral numbers
// decode to int64, other numbers to float64.
func DecodeRecords(data []byte) (Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out Batch
	err := expectDelim(dec, '[')
	if err != nil {
		return Batch{}, err
	}
	for dec.More() {
		err = expectDelim(dec, '{')
		if err != nil {
			return Batch{}, err
		}
		row := Row{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return Batch{}, err
			}
			key, ok := tok.(string)
			if !ok {
				return Batch{}, ErrNotRecords
			}
			var value any
			err = dec.Decode(&value)
			if err != nil {
				return Batch{}, err
			}
			out.AddColumn(key)
			row[key] = normalizeNumber(value)
		}
		err = expectDelim(dec, '}')
		if err != nil {
			return Batch{}, err
		}
		out.Append(row)
	}
	err = expectDelim(dec, ']')
	if err != nil {
		return Batch{}, err
	}
	_, err = dec.Token()
	if err != io.EOF {
		return Batch{}, fmt.Errorf("trailing data after records")
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return ErrNotRecords
	}
	if err != nil {
		return err
	}
	got, ok := tok.(json.Delim)
	if !ok || got != want {
		return ErrNotRecords
	}
	return nil
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	i, err := n.Int64()
	if err == nil {
		return i
	}
	f, err := n.Float64()
	if err == nil {
		return f
	}
	return n.String()
}
