package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// SerializationError reports a value the canonical encoder cannot represent.
// Path locates the value inside the input, e.g. $.children[2].name.
type SerializationError struct {
	Path string
	Kind string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot canonicalize %s at %s", e.Kind, e.Path)
}

// Canonicalize renders v as canonical JSON: object keys sorted recursively,
// "," and ":" separators without whitespace, non-ASCII escaped as \uXXXX,
// integers at full precision and other numbers as the shortest float64 text.
// The output is byte-identical to
// json.dumps(v, sort_keys=True, separators=(",", ":")) for JSON-shaped data.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, "$", v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the lowercase hex SHA-256 of the canonical form of v.
func Digest(v any) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(canon), nil
}

// DigestBytes returns the lowercase hex SHA-256 of b.
func DigestBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// DigestFile hashes a whole file without canonicalizing it.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("error reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeValue(buf *bytes.Buffer, path string, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, t)
	case json.Number:
		return writeNumber(buf, path, t.String())
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case float32:
		return writeFloat(buf, path, float64(t))
	case float64:
		return writeFloat(buf, path, t)
	case []byte:
		return &SerializationError{Path: path, Kind: "binary value"}
	case []any:
		return writeList(buf, path, len(t), func(i int) any { return t[i] })
	case map[string]any:
		return writeObject(buf, path, t)
	default:
		return writeReflect(buf, path, v)
	}
	return nil
}

// writeReflect covers named map and slice types such as data.RawRecord and
// typed slices; anything else is unsupported.
func writeReflect(buf *bytes.Buffer, path string, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return writeValue(buf, path, rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return &SerializationError{Path: path, Kind: fmt.Sprintf("map with %s keys", rv.Type().Key())}
		}
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return writeObject(buf, path, m)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return &SerializationError{Path: path, Kind: "binary value"}
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return writeList(buf, path, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.String:
		writeString(buf, rv.String())
		return nil
	case reflect.Bool:
		return writeValue(buf, path, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, path, rv.Float())
	}
	return &SerializationError{Path: path, Kind: fmt.Sprintf("value of type %T", v)}
}

func writeList(buf *bytes.Buffer, path string, n int, at func(int) any) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, fmt.Sprintf("%s[%d]", path, i), at(i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeObject(buf *bytes.Buffer, path string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := writeValue(buf, path+"."+k, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeNumber normalizes a decoded literal so equal values hash alike:
// integer literals keep full precision, anything with a fraction or exponent
// is read as a float64.
func writeNumber(buf *bytes.Buffer, path, s string) error {
	if !isNumberLiteral(s) {
		return &SerializationError{Path: path, Kind: fmt.Sprintf("number literal %q", s)}
	}
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return &SerializationError{Path: path, Kind: fmt.Sprintf("number literal %q", s)}
		}
		buf.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &SerializationError{Path: path, Kind: fmt.Sprintf("number literal %q out of range", s)}
	}
	return writeFloat(buf, path, f)
}

// writeFloat follows the shortest round-trip representation, keeping a
// trailing ".0" on integral values and exponent form outside [1e-4, 1e16).
func writeFloat(buf *bytes.Buffer, path string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &SerializationError{Path: path, Kind: fmt.Sprintf("non-finite number %v", f)}
	}
	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-4 && abs < 1e16) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if f == math.Trunc(f) {
			s += ".0"
		}
		buf.WriteString(s)
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'e', -1, 64))
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r >= 0x20 && r < 0x7f:
			buf.WriteByte(byte(r))
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			writeEscape(buf, r1)
			writeEscape(buf, r2)
		default:
			writeEscape(buf, r)
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

func isNumberLiteral(s string) bool {
	if s == "" {
		return false
	}
	if c := s[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}
