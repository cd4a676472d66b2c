package deviceconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is the envelope every IMD API call answers with.
//
//	{"retCode": 0, "retMsg": "Operation completed successfully", "data": ...}
type Response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the device accepted the call outright.
func (r *Response) OK() bool {
	return r.RetCode == 0
}

// DataString decodes Data as a JSON string, as returned by sys/version.
func (r *Response) DataString() (string, error) {
	var s string
	if err := json.Unmarshal(r.Data, &s); err != nil {
		return "", fmt.Errorf("response data is not a string: %w", err)
	}
	return s, nil
}

// requestBody is the JSON document sent for each command. Token is only
// present on add, credentials only on set and delete.
type requestBody struct {
	Token    *string        `json:"token,omitempty"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Cmd      string         `json:"cmd"`
	Data     map[string]any `json:"data,omitempty"`
}

// CleanJSONResponse extracts the first JSON object from a response body.
//
// Some IMD firmware versions pad the body with whitespace or append an
// HTML fragment after the JSON document:
//
//	{"retCode":0,"retMsg":"OK"}<br/>
//
// This function finds the end of the first object and truncates the rest.
func CleanJSONResponse(data []byte) ([]byte, error) {
	start := bytes.IndexByte(data, '{')
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	// Find the matching closing '}' by tracking brace depth
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(data); i++ {
		b := data[i]

		if escaped {
			escaped = false
			continue
		}
		if b == '\\' {
			escaped = true
			continue
		}

		// Braces inside strings don't count
		if b == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch b {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return data[start : i+1], nil
				}
			}
		}
	}

	return nil, fmt.Errorf("unclosed JSON object in response")
}

// ParseResponse decodes a response body into the retCode/retMsg envelope.
func ParseResponse(body []byte) (*Response, error) {
	clean, err := CleanJSONResponse(body)
	if err != nil {
		return nil, NewParseError("failed to clean JSON response", err)
	}

	var resp Response
	if err := json.Unmarshal(clean, &resp); err != nil {
		return nil, NewParseError("failed to parse JSON response", err)
	}
	return &resp, nil
}
