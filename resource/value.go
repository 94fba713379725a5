package resource

import "fmt"

// Value is an attribute or configuration value attached to a resource or to
// the build's configuration fingerprint. The design deliberately closes the
// grammar instead of accepting arbitrary Serializable payloads (as the
// original Java library does): string, int64, bool, []byte, []Value and
// map[string]Value are the only shapes that round-trip losslessly through
// the msgpack wire format used by buildstate, and closing the grammar here
// means a bad value is rejected at Set time instead of failing obscurely at
// commit.
type Value = any

// Validate reports whether v belongs to the closed value grammar. nil is
// valid: it represents the removal of a configuration key. A plain int is
// accepted as well as int64.
func Validate(v Value) error {
	switch t := v.(type) {
	case nil, string, bool, int, int64, []byte:
		return nil
	case []Value:
		for _, elem := range t {
			if err := Validate(elem); err != nil {
				return err
			}
		}
		return nil
	case map[string]Value:
		for _, elem := range t {
			if err := Validate(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("resource: value of type %T is not in the closed value grammar (string, int64, bool, []byte, []Value, map[string]Value)", v)
	}
}
