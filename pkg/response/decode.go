package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Result is a decoded gateway response. OK=false is the uniform failure
// signal; Message then holds the text to show the user (may be empty).
type Result struct {
	OK      bool
	Status  int
	Data    json.RawMessage
	Message string

	// Raw is the whole parsed body, envelope included.
	Raw json.RawMessage
}

// Unmarshal decodes the success payload into v.
func (r Result) Unmarshal(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Decode normalizes a raw gateway response. Both the standard envelope
// {status:"success", data|message} and legacy unwrapped bodies are accepted.
func Decode(status int, contentType string, body []byte) Result {
	parsed, isJSON := parseBody(contentType, body)

	if status < 200 || status > 299 {
		return Result{Status: status, Message: errorMessage(status, parsed, isJSON, body)}
	}

	if !isJSON || isNull(parsed) {
		return Result{Status: status}
	}

	env, isObject := asObject(parsed)
	if isObject && isSuccessEnvelope(env) {
		if data, ok := env["data"]; ok {
			return Result{OK: true, Status: status, Data: data, Raw: parsed}
		}
		if msg := stringField(env, "message"); msg != "" {
			wrapped, _ := json.Marshal(map[string]string{"message": msg})
			return Result{OK: true, Status: status, Data: wrapped, Message: msg, Raw: parsed}
		}
		return Result{OK: true, Status: status, Data: json.RawMessage(`{}`), Raw: parsed}
	}

	return Result{OK: true, Status: status, Data: parsed, Raw: parsed}
}

// parseBody only attempts JSON when the header says so or the body looks like
// an object/array; a parse failure simply means there is no structured data.
func parseBody(contentType string, body []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}
	looksJSON := strings.Contains(strings.ToLower(contentType), "application/json") ||
		trimmed[0] == '{' || trimmed[0] == '['
	if !looksJSON || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func errorMessage(status int, parsed json.RawMessage, isJSON bool, body []byte) string {
	if isJSON && (parsed[0] == '{' || parsed[0] == '[') {
		obj, _ := asObject(parsed)
		for _, key := range []string{"message", "error", "details"} {
			if msg := stringField(obj, key); msg != "" {
				return msg
			}
		}
		return fmt.Sprintf("HTTP Error %d", status)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP Error %d", status)
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isSuccessEnvelope(obj map[string]json.RawMessage) bool {
	return stringField(obj, "status") == "success"
}

// stringField returns a string value, or the compact JSON text of a non-string,
// non-empty value (e.g. a structured "details" object).
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch string(raw) {
	case "false", "0", `""`, "[]", "{}":
		return ""
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
