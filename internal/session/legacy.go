package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DecodeLegacy normalizes a stored session blob into a plain key/value mapping.
//
// Three encodings are accepted: the PHP "php" session handler format
// (name|<serialized>name|<serialized>...), the "php_serialize" handler format
// (a single serialized array) and a JSON object. Serialized PHP values map to
// Go values as follows: i -> int64, d -> float64, b -> bool, s -> string,
// N -> nil, arrays with keys 0..n-1 -> []any, other arrays and objects ->
// map[string]any.
func DecodeLegacy(blob []byte) (map[string]any, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, errors.New("empty session blob")
	}

	if blob[0] == '{' {
		return decodeJSONObject(blob)
	}

	if bytes.HasPrefix(blob, []byte("a:")) {
		d := &phpDecoder{data: blob}
		v, err := d.value()
		if err == nil && d.pos == len(d.data) {
			if m, ok := asMap(v); ok {
				return m, nil
			}
		}
		// Fall through: a "php" handler blob whose first variable is named "a:" is
		// not valid php_serialize output but is still worth a second attempt.
	}

	return decodePHPHandler(blob)
}

// DecodeLegacyValue decodes a single PHP-serialized value such as a:2:{i:0;i:5;i:1;i:7;}.
func DecodeLegacyValue(data []byte) (any, error) {
	d := &phpDecoder{data: bytes.TrimSpace(data)}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("trailing data at offset %d", d.pos)
	}
	return v, nil
}

func decodePHPHandler(blob []byte) (map[string]any, error) {
	out := make(map[string]any)
	d := &phpDecoder{data: blob}
	for d.pos < len(d.data) {
		sep := bytes.IndexByte(d.data[d.pos:], '|')
		if sep <= 0 {
			return nil, fmt.Errorf("expected variable name at offset %d", d.pos)
		}
		name := string(d.data[d.pos : d.pos+sep])
		d.pos += sep + 1
		v, err := d.value()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func decodeJSONObject(blob []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json session: %w", err)
	}
	for k, v := range raw {
		raw[k] = normalizeJSON(v)
	}
	return raw, nil
}

func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return v
	}
}

// phpDecoder reads values produced by PHP's serialize().
type phpDecoder struct {
	data []byte
	pos  int
}

func (d *phpDecoder) value() (any, error) {
	if d.pos >= len(d.data) {
		return nil, errors.New("unexpected end of data")
	}
	tag := d.data[d.pos]
	switch tag {
	case 'N':
		if err := d.expect("N;"); err != nil {
			return nil, err
		}
		return nil, nil
	case 'b':
		raw, err := d.scalar("b:")
		if err != nil {
			return nil, err
		}
		switch raw {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, fmt.Errorf("invalid bool %q", raw)
	case 'i':
		raw, err := d.scalar("i:")
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", raw)
		}
		return n, nil
	case 'd':
		raw, err := d.scalar("d:")
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", raw)
		}
		return f, nil
	case 's':
		if err := d.expect("s:"); err != nil {
			return nil, err
		}
		s, err := d.quoted()
		if err != nil {
			return nil, err
		}
		if err := d.expect(";"); err != nil {
			return nil, err
		}
		return s, nil
	case 'a':
		if err := d.expect("a:"); err != nil {
			return nil, err
		}
		return d.array()
	case 'O':
		if err := d.expect("O:"); err != nil {
			return nil, err
		}
		// Class name is dropped; properties decode like an array.
		if _, err := d.quoted(); err != nil {
			return nil, err
		}
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		v, err := d.array()
		if err != nil {
			return nil, err
		}
		if m, ok := asMap(v); ok {
			return stripVisibility(m), nil
		}
		return v, nil
	case 'r', 'R':
		// References to earlier values are not resolved.
		if _, err := d.scalar(string(tag) + ":"); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown type %q at offset %d", tag, d.pos)
	}
}

// array reads `n:{key;value...}` after the type prefix.
func (d *phpDecoder) array() (any, error) {
	countRaw, err := d.until(':')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(countRaw)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid array length %q", countRaw)
	}
	if err := d.expect("{"); err != nil {
		return nil, err
	}
	// Each entry needs at least "i:0;" for its key plus a value.
	if count > (len(d.data)-d.pos)/4 {
		return nil, fmt.Errorf("array length %d overruns data", count)
	}

	keys := make([]string, 0, count)
	values := make(map[string]any, count)
	sequential := true
	for i := 0; i < count; i++ {
		k, err := d.value()
		if err != nil {
			return nil, fmt.Errorf("array key %d: %w", i, err)
		}
		var key string
		switch kv := k.(type) {
		case int64:
			key = strconv.FormatInt(kv, 10)
			if kv != int64(i) {
				sequential = false
			}
		case string:
			key = kv
			sequential = false
		default:
			return nil, fmt.Errorf("invalid array key type %T", k)
		}
		v, err := d.value()
		if err != nil {
			return nil, fmt.Errorf("array value %q: %w", key, err)
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if err := d.expect("}"); err != nil {
		return nil, err
	}

	if sequential {
		list := make([]any, len(keys))
		for i, k := range keys {
			list[i] = values[k]
		}
		return list, nil
	}
	return values, nil
}

// quoted reads `len:"bytes"`. The length counts bytes, not runes.
func (d *phpDecoder) quoted() (string, error) {
	lenRaw, err := d.until(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(lenRaw)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid string length %q", lenRaw)
	}
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	if n > len(d.data)-d.pos {
		return "", fmt.Errorf("string of length %d overruns data", n)
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	return s, nil
}

func (d *phpDecoder) scalar(prefix string) (string, error) {
	if err := d.expect(prefix); err != nil {
		return "", err
	}
	return d.until(';')
}

func (d *phpDecoder) until(b byte) (string, error) {
	idx := bytes.IndexByte(d.data[d.pos:], b)
	if idx < 0 {
		return "", fmt.Errorf("expected %q after offset %d", b, d.pos)
	}
	s := string(d.data[d.pos : d.pos+idx])
	d.pos += idx + 1
	return s, nil
}

func (d *phpDecoder) expect(s string) error {
	if !bytes.HasPrefix(d.data[d.pos:], []byte(s)) {
		return fmt.Errorf("expected %q at offset %d", s, d.pos)
	}
	d.pos += len(s)
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case []any:
		m := make(map[string]any, len(val))
		for i, item := range val {
			m[strconv.Itoa(i)] = item
		}
		return m, true
	}
	return nil, false
}

// stripVisibility removes the NUL-delimited class or "*" prefix PHP adds to
// private and protected property names.
func stripVisibility(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, "\x00") {
			if idx := strings.LastIndexByte(k, 0); idx >= 0 {
				k = k[idx+1:]
			}
		}
		out[k] = v
	}
	return out
}
