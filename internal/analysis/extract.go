package analysis

import (
	"encoding/json"
	"errors"
	"regexp"
)

var ErrNoJSON = errors.New("no valid JSON found in response")

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the span from the first '{' to the last '}' in text. The
// span must parse as a JSON object.
func ExtractJSON(text string) (json.RawMessage, error) {
	match := jsonObject.FindString(text)
	if match == "" {
		return nil, ErrNoJSON
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match), &probe); err != nil {
		return nil, err
	}
	return json.RawMessage(match), nil
}
