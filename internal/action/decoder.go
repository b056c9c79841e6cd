package action

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/petrijr/actiflow/pkg/api"
)

// DecodeNote attempts to extract an action descriptor from a node note.
//
// The descriptor is a JSON object with a non-empty "action" string and an
// optional "params" string map, embedded anywhere in the note text. Any
// non-matching or malformed content means "no action": the node is treated
// as plain text and the failure is logged, never returned as an error.
func DecodeNote(note string, logger *zap.Logger) (*api.ActionInvocation, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}

	start := strings.Index(note, "{")
	end := strings.LastIndex(note, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var inv api.ActionInvocation
	if err := json.Unmarshal([]byte(note[start:end+1]), &inv); err != nil {
		logger.Debug("note is not an action descriptor", zap.Error(err))
		return nil, false
	}
	if inv.Action == "" {
		return nil, false
	}
	if inv.Params == nil {
		inv.Params = make(map[string]string)
	}
	return &inv, true
}
