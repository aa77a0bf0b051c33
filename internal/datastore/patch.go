package datastore

import (
	"encoding/json"
	"fmt"
)

// applyPatch merges patch into the JSON object data.
func applyPatch(data json.RawMessage, patch Patch) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode stored document: %w", err)
		}
	}
	for key, value := range patch {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %q: %w", key, err)
		}
		fields[key] = raw
	}
	return json.Marshal(fields)
}

// patchedStatus returns the new indexed status when the patch sets one.
func patchedStatus(patch Patch, current string) string {
	if v, ok := patch["status"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return current
}

func validateDocument(doc *Document) error {
	switch {
	case doc == nil:
		return validationError("document cannot be nil", "document")
	case doc.Collection == "":
		return validationError("collection cannot be empty", "collection")
	case doc.ID == "":
		return validationError("id cannot be empty", "id")
	case len(doc.Data) == 0:
		return validationError("document data cannot be empty", "data")
	}
	return nil
}
