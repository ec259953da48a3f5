// Package codec defines the wire envelope for job arguments and keyword arguments.
//
// The original implementation this system was distilled from serialized raw
// document-store object ids by deep-walking args/kwargs at publish time and
// reversing the walk on receipt. That implicit walk is replaced here with an
// explicit, typed union: a Value is a scalar, a sequence, a mapping, or a tagged
// ObjectRef — nothing else is legal on the wire, and nothing is inferred from shape.
package codec

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the variant held by a Value.
type Kind string

const (
	KindNull     Kind = "null"
	KindBool     Kind = "bool"
	KindNumber   Kind = "number"
	KindString   Kind = "string"
	KindSequence Kind = "sequence"
	KindMapping  Kind = "mapping"
	KindObjectRef Kind = "object_ref"
)

// ObjectRef is a reference to a document in some named collection, e.g. a Mongo
// ObjectId or a Postgres row id. Collection and ID are both opaque strings; the
// consumer resolves them against whatever storage engine owns that collection.
type ObjectRef struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Value is the tagged union carried over the wire for every job argument and
// keyword argument. Exactly one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind `json:"kind"`

	Bool      bool              `json:"bool,omitempty"`
	Number    float64           `json:"number,omitempty"`
	String    string            `json:"string,omitempty"`
	Sequence  []Value           `json:"sequence,omitempty"`
	Mapping   map[string]Value  `json:"mapping,omitempty"`
	ObjectRef *ObjectRef        `json:"object_ref,omitempty"`
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value      { return Value{Kind: KindNumber, Number: n} }
func String(s string) Value       { return Value{Kind: KindString, String: s} }
func Sequence(vs ...Value) Value  { return Value{Kind: KindSequence, Sequence: vs} }
func Mapping(m map[string]Value) Value {
	return Value{Kind: KindMapping, Mapping: m}
}
func Ref(collection, id string) Value {
	return Value{Kind: KindObjectRef, ObjectRef: &ObjectRef{Collection: collection, ID: id}}
}

// Encode marshals a Value to its wire JSON form. Encoding never fails for a
// well-formed Value (the tag always matches the populated field), but the error
// return is kept for forward-compatible variants and to keep the call site
// symmetric with Decode.
func Encode(v Value) ([]byte, error) {
	return json.Marshal(v)
}

// Decode parses a wire-form Value. It rejects an unknown Kind and an object_ref
// without a collection or id, at any depth of nested sequences and mappings.
// Fields that do not belong to the declared Kind are not checked.
func Decode(raw []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("codec: decode: %w", err)
	}
	if err := v.validate(); err != nil {
		return Value{}, err
	}
	return v, nil
}

func (v Value) validate() error {
	switch v.Kind {
	case KindNull, KindBool, KindNumber, KindString:
		return nil
	case KindSequence:
		for i := range v.Sequence {
			if err := v.Sequence[i].validate(); err != nil {
				return fmt.Errorf("codec: sequence[%d]: %w", i, err)
			}
		}
		return nil
	case KindMapping:
		for k, mv := range v.Mapping {
			if err := mv.validate(); err != nil {
				return fmt.Errorf("codec: mapping[%q]: %w", k, err)
			}
		}
		return nil
	case KindObjectRef:
		if v.ObjectRef == nil || v.ObjectRef.Collection == "" || v.ObjectRef.ID == "" {
			return fmt.Errorf("codec: object_ref missing collection or id")
		}
		return nil
	default:
		return fmt.Errorf("codec: unknown kind %q", v.Kind)
	}
}

// FromNative converts a decoded-JSON-style Go value (the map[string]any/[]any/
// string/float64/bool/nil shape produced by encoding/json) into a Value tree.
// It never produces KindObjectRef on its own — callers that want a reference must
// build it explicitly with Ref before handing args to a producer.
func FromNative(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		out := make([]Value, 0, len(t))
		for _, e := range t {
			out = append(out, FromNative(e))
		}
		return Value{Kind: KindSequence, Sequence: out}
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromNative(e)
		}
		return Mapping(out)
	default:
		return String(fmt.Sprint(t))
	}
}

// ToNative converts a Value tree back into plain Go values, resolving ObjectRef
// into a map with "__ref__" collection/id keys so downstream handlers can detect
// and resolve it against the storage engine that owns that collection.
func ToNative(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.String
	case KindSequence:
		out := make([]any, 0, len(v.Sequence))
		for _, e := range v.Sequence {
			out = append(out, ToNative(e))
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.Mapping))
		for k, e := range v.Mapping {
			out[k] = ToNative(e)
		}
		return out
	case KindObjectRef:
		return map[string]any{
			"__ref__":    true,
			"collection": v.ObjectRef.Collection,
			"id":         v.ObjectRef.ID,
		}
	default:
		return nil
	}
}
