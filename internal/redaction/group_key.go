package redaction

import "encoding/json"

// decodeJSONArray parses a JSON-encoded array of field names, as allowed
// for RedactionConfig group keys.
func decodeJSONArray(raw string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	return names, nil
}
