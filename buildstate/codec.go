package buildstate

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// Encode writes s to w in the module's wire format.
func Encode(w io.Writer, s *State) error {
	wire, err := toWire(s)
	if err != nil {
		return fmt.Errorf("buildstate: encode: %w", err)
	}
	if err := msgpack.NewEncoder(w).Encode(wire); err != nil {
		return fmt.Errorf("buildstate: encode: %w", err)
	}
	return nil
}

// Decode reads a State previously written by Encode.
func Decode(r io.Reader) (*State, error) {
	var wire wireState
	if err := msgpack.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("buildstate: decode: %w", err)
	}
	return fromWire(&wire)
}

// Load reads the state file at path. Any failure to read or decode it is
// treated as "no previous state" rather than propagated: a missing file is
// the common first-build case, and a corrupt or foreign-version file
// should not wedge the build. The bool result reports whether a previous
// state was actually found, so callers can log the distinction ("does not
// exist" vs. "configuration change detected").
func Load(path string) (state *State, found bool) {
	if path == "" {
		return Empty(), false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(), false
	}
	s, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Empty(), false
	}
	return s, true
}

// Save persists s to path through ws, so the write goes through whatever
// atomic-replace semantics the workspace implementation provides: the
// stream either fully replaces the previous contents or fails. The stream
// is always closed, on both the success and the encode-error path.
func Save(ws workspace.Workspace, path string, s *State) (err error) {
	out, openErr := ws.NewOutputStream(path)
	if openErr != nil {
		return fmt.Errorf("buildstate: save: %w", openErr)
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()
	return Encode(out, s)
}
