package statement

import (
	"fmt"

	"github.com/google/uuid"
)

// Reserved payload keys.
const (
	KeyIdentifier       = "__identifier"
	KeyVersion          = "__version"
	KeySignedIdentifier = "__signedIdentifier"
	KeyReferenceID      = "__referenceId"
	KeyEntityType       = "__entityType"
)

// Payload is a transfer instance as exchanged with clients: attribute
// values by name, relations as Payload or []Payload, and reserved keys.
type Payload map[string]any

// Identifier returns the identifier of the instance. It reports false for
// payloads of new instances.
func (p Payload) Identifier() (uuid.UUID, bool, error) {
	v, ok := p[KeyIdentifier]
	if !ok || v == nil {
		return uuid.Nil, false, nil
	}
	id, err := AsIdentifier(v)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Version returns the version the instance was loaded at.
func (p Payload) Version() (int, bool) {
	switch v := p[KeyVersion].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ReferenceID returns the client correlation id of the payload.
func (p Payload) ReferenceID() string {
	s, _ := p[KeyReferenceID].(string)
	return s
}

// SignedIdentifier returns the signed identifier of the payload.
func (p Payload) SignedIdentifier() string {
	s, _ := p[KeySignedIdentifier].(string)
	return s
}

// Has reports whether the payload holds a value, possibly nil, for name.
func (p Payload) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Related returns the payloads held by a relation. A single payload is
// returned as a one-element slice, nil as none.
func (p Payload) Related(name string) ([]Payload, error) {
	switch v := p[name].(type) {
	case nil:
		return nil, nil
	case Payload:
		return []Payload{v}, nil
	case map[string]any:
		return []Payload{v}, nil
	case []Payload:
		return v, nil
	case []map[string]any:
		out := make([]Payload, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]Payload, 0, len(v))
		for _, e := range v {
			switch e := e.(type) {
			case Payload:
				out = append(out, e)
			case map[string]any:
				out = append(out, e)
			default:
				return nil, fmt.Errorf("statement: relation %s holds %T", name, e)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("statement: relation %s holds %T", name, p[name])
}

// AsIdentifier converts identifiers as found in payloads and rows.
func AsIdentifier(v any) (uuid.UUID, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case [16]byte:
		return uuid.UUID(v), nil
	}
	return uuid.Nil, fmt.Errorf("statement: %T is not an identifier", v)
}
