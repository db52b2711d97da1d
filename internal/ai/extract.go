package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// refinementPayload is the loose shape we accept from the model. Fields are
// coerced one by one because providers happily emit "85" for 85 or wrap the
// array in an envelope object.
type refinementPayload struct {
	Evaluations []evaluationPayload `json:"evaluations"`
}

type evaluationPayload struct {
	ID                 json.RawMessage `json:"id"`
	Score              json.RawMessage `json:"score"`
	SuccessProbability json.RawMessage `json:"success_probability"`
	Reasons            []string        `json:"reasons"`
}

// parseRefinementResponse is the single place prose from the provider turns
// into structured evaluations. It never panics: any shape problem comes back
// as an error for the refiner to classify as parse_error.
func parseRefinementResponse(resp string) ([]evaluationPayload, error) {
	// Clean markdown code blocks
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	jsonStr, ok := extractFirstJSONValue(cleaned)
	if !ok {
		return nil, fmt.Errorf("no JSON object or array in response")
	}

	if strings.HasPrefix(jsonStr, "[") {
		var evals []evaluationPayload
		if err := json.Unmarshal([]byte(jsonStr), &evals); err != nil {
			return nil, err
		}
		return evals, nil
	}

	var payload refinementPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, err
	}
	if payload.Evaluations == nil {
		return nil, fmt.Errorf("response object carries no evaluations field")
	}
	return payload.Evaluations, nil
}

// extractFirstJSONValue finds the first outermost balanced {...} or [...],
// whichever opens earlier in the text.
func extractFirstJSONValue(s string) (string, bool) {
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start := objStart
	open, close := byte('{'), byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		open, close = '[', ']'
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == open {
				depth++
			} else if char == close {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// coerceString tolerates models quoting ids as numbers or padding them with
// whitespace.
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// coerceFloat accepts both numeric and quoted-numeric fields.
func coerceFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n json.Number = json.Number(strings.TrimSpace(s))
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
