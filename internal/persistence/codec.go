package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/actiflow/pkg/api"
)

// The stores serialize definitions and variable maps with encoding/gob.
// Everything the engine persists is a concrete type, so no
// interface-vs-concrete fallback decoding is needed.

func encodeDefinition(def *api.Definition) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDefinition(data []byte) (*api.Definition, error) {
	var def api.Definition
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func encodeVariables(vars map[string]string) ([]byte, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vars); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVariables(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	var vars map[string]string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vars); err != nil {
		return nil, err
	}
	return vars, nil
}
