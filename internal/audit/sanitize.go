package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The sanitizer converts arbitrary metadata into a closed, typed value model
// before anything reaches persisted audit or fraud storage. The deny-list walk
// over that model is total: every representable shape is either a leaf with a
// fixed rendering or a container that is recursed into, so no raw sensitive
// value can slip through at any nesting depth.

// Kind enumerates the shapes a sanitized value can take.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindTime
	KindBytes
	KindMap
	KindList
)

// Value is a tagged union over the sanitizer's closed type set.
type Value struct {
	Kind    Kind
	Bool    bool
	Int     int64
	Float   float64
	Decimal decimal.Decimal
	Str     string
	Time    time.Time
	ByteLen int
	Map     map[string]Value
	List    []Value
}

// deniedKeys is the fixed deny-list, matched against normalized key names
// (lowercased, separators stripped) at every nesting level.
var deniedKeys = map[string]struct{}{
	"password":          {},
	"passwordhash":      {},
	"currentpassword":   {},
	"newpassword":       {},
	"token":             {},
	"accesstoken":       {},
	"refreshtoken":      {},
	"idtoken":           {},
	"authorization":     {},
	"secret":            {},
	"clientsecret":      {},
	"apikey":            {},
	"privatekey":        {},
	"nationalid":        {},
	"ssn":               {},
	"cardnumber":        {},
	"pan":               {},
	"cvv":               {},
	"cvc":               {},
	"pin":               {},
	"bankaccount":       {},
	"accountnumber":     {},
	"routingnumber":     {},
	"iban":              {},
	"twofactorsecret":   {},
	"totpsecret":        {},
	"otpsecret":         {},
	"recoverycode":      {},
	"recoverycodes":     {},
	"securityanswer":    {},
}

func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keyDenied(key string) bool {
	_, ok := deniedKeys[normalizeKey(key)]
	return ok
}

// Convert maps an arbitrary Go value into the closed Value model. Types the
// model does not know are pushed through their JSON form, so values reached
// only via custom serialization still land inside the walkable model.
func Convert(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case int:
		return Value{Kind: KindInt, Int: int64(t)}
	case int32:
		return Value{Kind: KindInt, Int: int64(t)}
	case int64:
		return Value{Kind: KindInt, Int: t}
	case uint:
		return Value{Kind: KindInt, Int: int64(t)}
	case uint64:
		return Value{Kind: KindInt, Int: int64(t)}
	case float32:
		return Value{Kind: KindFloat, Float: float64(t)}
	case float64:
		return Value{Kind: KindFloat, Float: t}
	case decimal.Decimal:
		return Value{Kind: KindDecimal, Decimal: t}
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return Value{Kind: KindDecimal, Decimal: d}
		}
		return Value{Kind: KindString, Str: t.String()}
	case string:
		return Value{Kind: KindString, Str: t}
	case time.Time:
		return Value{Kind: KindTime, Time: t}
	case *time.Time:
		if t == nil {
			return Value{Kind: KindNull}
		}
		return Value{Kind: KindTime, Time: *t}
	case []byte:
		return Value{Kind: KindBytes, ByteLen: len(t)}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, inner := range t {
			m[k] = Convert(inner)
		}
		return Value{Kind: KindMap, Map: m}
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, inner := range t {
			m[k] = Value{Kind: KindString, Str: inner}
		}
		return Value{Kind: KindMap, Map: m}
	case []any:
		l := make([]Value, 0, len(t))
		for _, inner := range t {
			l = append(l, Convert(inner))
		}
		return Value{Kind: KindList, List: l}
	case []string:
		l := make([]Value, 0, len(t))
		for _, inner := range t {
			l = append(l, Value{Kind: KindString, Str: inner})
		}
		return Value{Kind: KindList, List: l}
	case error:
		return Value{Kind: KindString, Str: t.Error()}
	default:
		return convertViaJSON(v)
	}
}

// convertViaJSON flattens structs and other custom types through their JSON
// serialization so nested fields become walkable maps.
func convertViaJSON(v any) Value {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{Kind: KindString, Str: fmt.Sprintf("%T", v)}
	}
	var decoded any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Value{Kind: KindString, Str: string(data)}
	}
	return Convert(decoded)
}

// redact removes deny-listed keys at every nesting level.
func redact(v Value) Value {
	switch v.Kind {
	case KindMap:
		out := make(map[string]Value, len(v.Map))
		for k, inner := range v.Map {
			if keyDenied(k) {
				continue
			}
			out[k] = redact(inner)
		}
		return Value{Kind: KindMap, Map: out}
	case KindList:
		out := make([]Value, 0, len(v.List))
		for _, inner := range v.List {
			out = append(out, redact(inner))
		}
		return Value{Kind: KindList, List: out}
	default:
		return v
	}
}

// render turns a sanitized Value back into a JSON-safe representation.
// Empty values render to nil and are dropped by the enclosing container.
func render(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindDecimal:
		return v.Decimal.String()
	case KindString:
		if v.Str == "" {
			return nil
		}
		return v.Str
	case KindTime:
		if v.Time.IsZero() {
			return nil
		}
		return v.Time.UTC().Format(time.RFC3339Nano)
	case KindBytes:
		return fmt.Sprintf("[redacted %d bytes]", v.ByteLen)
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, inner := range v.Map {
			if r := render(inner); r != nil {
				out[k] = r
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case KindList:
		out := make([]any, 0, len(v.List))
		for _, inner := range v.List {
			if r := render(inner); r != nil {
				out = append(out, r)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Sanitize runs the full pipeline over a metadata map: convert, redact, render.
// The result contains no deny-listed key at any depth and no empty values.
func Sanitize(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	v := redact(Convert(metadata))
	rendered := render(v)
	out, ok := rendered.(map[string]any)
	if !ok {
		return nil
	}
	return out
}
