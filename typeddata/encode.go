package typeddata

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// primitives encodes atomic values, it carries no types of its own.
var primitives = new(apitypes.TypedData)

// hashStruct is the EIP-712 hashStruct. Unlike apitypes it accepts arrays of
// any depth, including arrays of structs such as Permission[][].
func hashStruct(types apitypes.Types, primaryType string, data map[string]interface{}) ([]byte, error) {
	fields, ok := types[primaryType]
	if !ok {
		return nil, fmt.Errorf("type %q is undefined", primaryType)
	}
	if len(data) > len(fields) {
		return nil, fmt.Errorf("%s has %d fields, got %d values", primaryType, len(fields), len(data))
	}

	buf := bytes.NewBuffer(crypto.Keccak256([]byte(encodeType(types, primaryType))))
	for _, field := range fields {
		value, ok := data[field.Name]
		if !ok {
			return nil, fmt.Errorf("%s.%s is missing", primaryType, field.Name)
		}
		enc, err := encodeValue(types, field.Type, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", primaryType, field.Name, err)
		}
		buf.Write(enc)
	}
	return crypto.Keccak256(buf.Bytes()), nil
}

func encodeValue(types apitypes.Types, typ string, value interface{}) ([]byte, error) {
	if elem, ok := arrayElem(typ); ok {
		items, err := toSlice(value)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		for i, item := range items {
			enc, err := encodeValue(types, elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf.Write(enc)
		}
		return crypto.Keccak256(buf.Bytes()), nil
	}
	if _, ok := types[typ]; ok {
		fields, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected %s struct, got %T", typ, value)
		}
		return hashStruct(types, typ, fields)
	}
	return primitives.EncodePrimitiveValue(typ, value, 1)
}

// encodeType renders the primary type followed by its referenced types sorted by name.
func encodeType(types apitypes.Types, primaryType string) string {
	deps := dependencies(types, primaryType, nil)
	if len(deps) > 1 {
		sort.Strings(deps[1:])
	}
	var b strings.Builder
	for _, dep := range deps {
		b.WriteString(dep)
		b.WriteByte('(')
		for i, field := range types[dep] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(field.Type)
			b.WriteByte(' ')
			b.WriteString(field.Name)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func dependencies(types apitypes.Types, typ string, found []string) []string {
	typ = baseType(typ)
	if _, ok := types[typ]; !ok || slices.Contains(found, typ) {
		return found
	}
	found = append(found, typ)
	for _, field := range types[typ] {
		found = dependencies(types, field.Type, found)
	}
	return found
}

func baseType(typ string) string {
	if i := strings.IndexByte(typ, '['); i >= 0 {
		return typ[:i]
	}
	return typ
}

// arrayElem strips the outermost array dimension: Permission[][] -> Permission[].
func arrayElem(typ string) (string, bool) {
	if !strings.HasSuffix(typ, "]") {
		return "", false
	}
	i := strings.LastIndexByte(typ, '[')
	if i < 0 {
		return "", false
	}
	return typ[:i], true
}

func toSlice(value interface{}) ([]interface{}, error) {
	if items, ok := value.([]interface{}); ok {
		return items, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected array, got %T", value)
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
