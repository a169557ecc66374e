// Copyright 2021 DocPipe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fjson provides converters between the record representation
// (JSON with some extensions) and `types` values.
//
// # Mapping
//
//	Alias      types package    JSON representation
//
//	object     *types.Document  {"$k": ["<key 1>", ...], "<key 1>": <value 1>, ...}
//	array      *types.Array     JSON array
//	double     float64          {"$f": JSON number} or {"$f": "Infinity|-Infinity|NaN"}
//	string     string           JSON string
//	binData    types.Binary     {"$b": "<base 64 string>", "s": <subtype number>}
//	bool       bool             JSON true / false values
//	date       time.Time        {"$d": milliseconds since epoch as JSON number}
//	null       types.NullType   JSON null
//	int        int32            JSON number
//	timestamp  types.Timestamp  {"$t": "<number as string>"}
//	long       int64            {"$l": "<number as string>"}
//
// The "$k" key list is written for compatibility with map-based decoders;
// Unmarshal itself preserves the token order of the input and merely skips it.
package fjson

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/docpipe/docpipe/internal/types"
	"github.com/docpipe/docpipe/internal/util/lazyerrors"
	"github.com/docpipe/docpipe/internal/util/must"
)

// Unmarshal decodes the given record bytes into a types value.
func Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if _, err = dec.Token(); err == nil {
		return nil, lazyerrors.New("fjson.Unmarshal: unexpected data after the value")
	}

	return v, nil
}

// UnmarshalDocument decodes the given record bytes into a document.
func UnmarshalDocument(data []byte) (*types.Document, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	doc, ok := v.(*types.Document)
	if !ok {
		return nil, lazyerrors.Errorf("fjson.UnmarshalDocument: expected document, got %T", v)
	}

	return doc, nil
}

// decodeValue decodes the next value from the decoder.
func decodeValue(dec *json.Decoder) (any, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	switch t := t.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, lazyerrors.Errorf("fjson: unexpected delimiter %q", t)
		}

	case string:
		return t, nil

	case json.Number:
		return decodeNumber(t)

	case bool:
		return t, nil

	case nil:
		return types.Null, nil

	default:
		return nil, lazyerrors.Errorf("fjson: unexpected token %[1]v (%[1]T)", t)
	}
}

// decodeNumber decodes a bare JSON number: integers that fit int32 become int32,
// everything else becomes float64.
func decodeNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}

		return float64(i), nil
	}

	f, err := n.Float64()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return f, nil
}

// decodeArray decodes an array after its opening delimiter was consumed.
func decodeArray(dec *json.Decoder) (*types.Array, error) {
	arr := types.MakeArray(0)

	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if err = arr.Append(v); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	// consume closing bracket
	if _, err := dec.Token(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return arr, nil
}

// decodeObject decodes a document or a type wrapper after its opening
// delimiter was consumed.
func decodeObject(dec *json.Decoder) (any, error) {
	var keys []string
	var values []any

	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		key, ok := t.(string)
		if !ok {
			return nil, lazyerrors.Errorf("fjson: expected object key, got %[1]v (%[1]T)", t)
		}

		v, err := decodeValue(dec)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		keys = append(keys, key)
		values = append(values, v)
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	if len(keys) > 0 {
		switch keys[0] {
		case "$f", "$l", "$t", "$d", "$b":
			return decodeWrapper(keys, values)
		}
	}

	doc := must.NotFail(types.NewDocument())

	for i, key := range keys {
		if key == "$k" {
			continue
		}

		if err := doc.Set(key, values[i]); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return doc, nil
}

// decodeWrapper decodes a type wrapper object ($f, $l, $t, $d, $b).
func decodeWrapper(keys []string, values []any) (any, error) {
	switch keys[0] {
	case "$f":
		switch v := values[0].(type) {
		case float64:
			return v, nil
		case int32:
			return float64(v), nil
		case string:
			switch v {
			case "Infinity":
				return math.Inf(1), nil
			case "-Infinity":
				return math.Inf(-1), nil
			case "NaN":
				return math.NaN(), nil
			}
		}

		return nil, lazyerrors.Errorf("fjson: invalid $f value %v", values[0])

	case "$l":
		s, ok := values[0].(string)
		if !ok {
			return nil, lazyerrors.Errorf("fjson: invalid $l value %v", values[0])
		}

		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return i, nil

	case "$t":
		s, ok := values[0].(string)
		if !ok {
			return nil, lazyerrors.Errorf("fjson: invalid $t value %v", values[0])
		}

		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		return types.Timestamp(u), nil

	case "$d":
		var ms int64
		switch v := values[0].(type) {
		case int32:
			ms = int64(v)
		case float64:
			ms = int64(v)
		default:
			return nil, lazyerrors.Errorf("fjson: invalid $d value %v", values[0])
		}

		return time.UnixMilli(ms).UTC(), nil

	case "$b":
		s, ok := values[0].(string)
		if !ok {
			return nil, lazyerrors.Errorf("fjson: invalid $b value %v", values[0])
		}

		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		res := types.Binary{B: b}

		if len(keys) > 1 && keys[1] == "s" {
			switch v := values[1].(type) {
			case int32:
				res.Subtype = types.BinarySubtype(v)
			default:
				return nil, lazyerrors.Errorf("fjson: invalid $b subtype %v", values[1])
			}
		}

		return res, nil

	default:
		return nil, lazyerrors.Errorf("fjson: unknown wrapper %q", keys[0])
	}
}

// Marshal encodes the given types value into record bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	if err := encodeValue(&buf, v); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return buf.Bytes(), nil
}

// encodeValue writes the representation of v into buf.
func encodeValue(buf *bytes.Buffer, v any) error {
	switch v := v.(type) {
	case *types.Document:
		buf.WriteString(`{"$k":`)

		keys := v.Keys()
		if keys == nil {
			keys = []string{}
		}
		must.NoError(json.NewEncoder(buf).Encode(keys))
		truncateNewline(buf)

		for _, key := range keys {
			buf.WriteByte(',')
			must.NoError(json.NewEncoder(buf).Encode(key))
			truncateNewline(buf)
			buf.WriteByte(':')

			if err := encodeValue(buf, must.NotFail(v.Get(key))); err != nil {
				return lazyerrors.Error(err)
			}
		}

		buf.WriteByte('}')

	case *types.Array:
		buf.WriteByte('[')

		for i := 0; i < v.Len(); i++ {
			if i != 0 {
				buf.WriteByte(',')
			}

			if err := encodeValue(buf, must.NotFail(v.Get(i))); err != nil {
				return lazyerrors.Error(err)
			}
		}

		buf.WriteByte(']')

	case float64:
		switch {
		case math.IsInf(v, 1):
			buf.WriteString(`{"$f":"Infinity"}`)
		case math.IsInf(v, -1):
			buf.WriteString(`{"$f":"-Infinity"}`)
		case math.IsNaN(v):
			buf.WriteString(`{"$f":"NaN"}`)
		default:
			fmt.Fprintf(buf, `{"$f":%v}`, v)
		}

	case string:
		must.NoError(json.NewEncoder(buf).Encode(v))
		truncateNewline(buf)

	case types.Binary:
		fmt.Fprintf(buf, `{"$b":%q,"s":%d}`, base64.StdEncoding.EncodeToString(v.B), v.Subtype)

	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case time.Time:
		fmt.Fprintf(buf, `{"$d":%d}`, v.UnixMilli())

	case types.NullType:
		buf.WriteString("null")

	case int32:
		buf.WriteString(strconv.FormatInt(int64(v), 10))

	case types.Timestamp:
		fmt.Fprintf(buf, `{"$t":"%d"}`, uint64(v))

	case int64:
		fmt.Fprintf(buf, `{"$l":"%d"}`, v)

	default:
		return lazyerrors.Errorf("fjson.Marshal: unsupported type %[1]T (%[1]v)", v)
	}

	return nil
}

// truncateNewline removes the trailing newline added by json.Encoder.Encode.
func truncateNewline(buf *bytes.Buffer) {
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		buf.Truncate(len(b) - 1)
	}
}
