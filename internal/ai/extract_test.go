package ai

import (
	"encoding/json"
	"testing"
)

func TestParseRefinementResponse_PlainObject(t *testing.T) {
	resp := `{"evaluations": [{"id": "s1", "score": 85, "success_probability": 0.7, "reasons": ["bon profil"]}]}`

	evals, err := parseRefinementResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
	if coerceString(evals[0].ID) != "s1" {
		t.Errorf("expected id s1, got %s", coerceString(evals[0].ID))
	}
}

func TestParseRefinementResponse_ProseWrapped(t *testing.T) {
	resp := `Voici mon analyse des candidats :

{"evaluations": [{"id": "s1", "score": 90}, {"id": "s2", "score": 40}]}

N'hésitez pas si vous avez des questions.`

	evals, err := parseRefinementResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
}

func TestParseRefinementResponse_MarkdownFence(t *testing.T) {
	resp := "```json\n{\"evaluations\": [{\"id\": \"s1\", \"score\": 75}]}\n```"

	evals, err := parseRefinementResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(evals))
	}
}

func TestParseRefinementResponse_BareArray(t *testing.T) {
	resp := `[{"id": "s1", "score": 60}, {"id": "s2", "score": 30}]`

	evals, err := parseRefinementResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
}

func TestParseRefinementResponse_MissingEvaluationsField(t *testing.T) {
	if _, err := parseRefinementResponse(`{"results": [{"id": "s1"}]}`); err == nil {
		t.Fatal("expected error for missing evaluations field")
	}
}

func TestParseRefinementResponse_NoJSON(t *testing.T) {
	if _, err := parseRefinementResponse("Désolé, je ne peux pas évaluer ces candidats."); err == nil {
		t.Fatal("expected error when no JSON is present")
	}
}

func TestParseRefinementResponse_EmptyEvaluations(t *testing.T) {
	evals, err := parseRefinementResponse(`{"evaluations": []}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evals) != 0 {
		t.Fatalf("expected 0 evaluations, got %d", len(evals))
	}
}

func TestExtractFirstJSONValue(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
		ok       bool
	}{
		{
			name:     "object with braces inside strings",
			in:       `before {"id": "a{b}c", "note": "fin}"} after`,
			expected: `{"id": "a{b}c", "note": "fin}"}`,
			ok:       true,
		},
		{
			name:     "escaped quote inside string",
			in:       `{"id": "say \"hi\"", "score": 1}`,
			expected: `{"id": "say \"hi\"", "score": 1}`,
			ok:       true,
		},
		{
			name:     "array before object",
			in:       `[1, 2] {"a": 1}`,
			expected: `[1, 2]`,
			ok:       true,
		},
		{
			name:     "nested objects",
			in:       `{"a": {"b": {"c": 1}}}`,
			expected: `{"a": {"b": {"c": 1}}}`,
			ok:       true,
		},
		{
			name: "unbalanced",
			in:   `{"a": 1`,
			ok:   false,
		},
		{
			name: "no json at all",
			in:   `rien du tout`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractFirstJSONValue(tt.in)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain string", `"abc"`, "abc"},
		{"padded string", `"  abc  "`, "abc"},
		{"numeric id", `42`, "42"},
		{"boolean rejected", `true`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceString(json.RawMessage(tt.raw)); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected float64
		ok       bool
	}{
		{"integer", `85`, 85, true},
		{"float", `0.75`, 0.75, true},
		{"quoted number", `"72.5"`, 72.5, true},
		{"quoted padded number", `" 12 "`, 12, true},
		{"word", `"haut"`, 0, false},
		{"empty", ``, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceFloat(json.RawMessage(tt.raw))
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got != tt.expected {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}
