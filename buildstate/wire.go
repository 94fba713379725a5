package buildstate

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/incrementalbuild/message"
	"github.com/GoCodeAlone/incrementalbuild/resource"
)

// wireState is the on-the-wire shape of State: interfaces (resource.Holder)
// and sets (map[resource.ID]struct{}) do not encode cleanly through
// msgpack's reflection-based codec, so the persisted form flattens both
// into plain, tagged structures.
type wireState struct {
	Configuration      map[string]resource.Value             `msgpack:"configuration"`
	Resources          map[string]wireHolder                 `msgpack:"resources"`
	Outputs            []string                               `msgpack:"outputs"`
	ResourceAttributes map[string]map[string]resource.Value  `msgpack:"resource_attributes"`
	ResourceMessages   map[string][]wireMessage               `msgpack:"resource_messages"`
	ResourceOutputs    map[string][]string                    `msgpack:"resource_outputs"`
}

// wireHolder is the tagged-variant wire form of resource.Holder. Kind
// selects which fields are meaningful; "file" is the only variant today
// (resource.FileState), and new Holder implementations extend this switch
// rather than the type itself, matching the tagged-variant design note.
type wireHolder struct {
	Kind                 string `msgpack:"kind"`
	Path                 string `msgpack:"path,omitempty"`
	LastModifiedUnixNano int64  `msgpack:"last_modified,omitempty"`
	Length               int64  `msgpack:"length,omitempty"`
}

type wireMessage struct {
	Line     int    `msgpack:"line"`
	Column   int    `msgpack:"column"`
	Text     string `msgpack:"text"`
	Severity int    `msgpack:"severity"`
	Cause    string `msgpack:"cause,omitempty"`
}

func toWireHolder(h resource.Holder) (wireHolder, error) {
	switch v := h.(type) {
	case resource.FileState:
		return wireHolder{
			Kind:                 "file",
			Path:                 string(v.Path),
			LastModifiedUnixNano: v.LastModified.UnixNano(),
			Length:               v.Length,
		}, nil
	default:
		return wireHolder{}, fmt.Errorf("buildstate: encode: unknown resource holder type %T", h)
	}
}

func fromWireHolder(w wireHolder) (resource.Holder, error) {
	switch w.Kind {
	case "file":
		return resource.NewFileState(resource.ID(w.Path), time.Unix(0, w.LastModifiedUnixNano).UTC(), w.Length), nil
	default:
		return nil, fmt.Errorf("buildstate: decode: unknown resource holder kind %q", w.Kind)
	}
}

func toWire(s *State) (*wireState, error) {
	w := &wireState{
		Configuration:      s.Configuration,
		Resources:          make(map[string]wireHolder, len(s.Resources)),
		Outputs:            make([]string, 0, len(s.Outputs)),
		ResourceAttributes: make(map[string]map[string]resource.Value, len(s.ResourceAttributes)),
		ResourceMessages:   make(map[string][]wireMessage, len(s.ResourceMessages)),
		ResourceOutputs:    make(map[string][]string, len(s.ResourceOutputs)),
	}

	for id, holder := range s.Resources {
		wh, err := toWireHolder(holder)
		if err != nil {
			return nil, err
		}
		w.Resources[string(id)] = wh
	}
	for id := range s.Outputs {
		w.Outputs = append(w.Outputs, string(id))
	}
	for id, attrs := range s.ResourceAttributes {
		w.ResourceAttributes[string(id)] = attrs
	}
	for id, messages := range s.ResourceMessages {
		wms := make([]wireMessage, len(messages))
		for i, m := range messages {
			wms[i] = wireMessage{Line: m.Line, Column: m.Column, Text: m.Text, Severity: int(m.Severity), Cause: m.Cause}
		}
		w.ResourceMessages[string(id)] = wms
	}
	for id, outputs := range s.ResourceOutputs {
		ids := make([]string, 0, len(outputs))
		for out := range outputs {
			ids = append(ids, string(out))
		}
		w.ResourceOutputs[string(id)] = ids
	}

	return w, nil
}

func fromWire(w *wireState) (*State, error) {
	s := New(w.Configuration)

	for id, wh := range w.Resources {
		holder, err := fromWireHolder(wh)
		if err != nil {
			return nil, err
		}
		s.Resources[resource.ID(id)] = holder
	}
	for _, id := range w.Outputs {
		s.Outputs[resource.ID(id)] = struct{}{}
	}
	for id, attrs := range w.ResourceAttributes {
		s.ResourceAttributes[resource.ID(id)] = attrs
	}
	for id, wms := range w.ResourceMessages {
		messages := make([]message.Message, len(wms))
		for i, wm := range wms {
			messages[i] = message.Message{Line: wm.Line, Column: wm.Column, Text: wm.Text, Severity: message.Severity(wm.Severity), Cause: wm.Cause}
		}
		s.ResourceMessages[resource.ID(id)] = messages
	}
	for id, outs := range w.ResourceOutputs {
		set := make(map[resource.ID]struct{}, len(outs))
		for _, out := range outs {
			set[resource.ID(out)] = struct{}{}
		}
		s.ResourceOutputs[resource.ID(id)] = set
	}

	return s, nil
}
