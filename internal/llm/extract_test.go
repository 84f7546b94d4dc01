package llm

import (
	"errors"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"raw array", `[{"n":1},{"n":2}]`, 2},
		{"fenced", "Here you go:\n```json\n[{\"n\":1}]\n```\nEnjoy", 1},
		{"embedded", `Sure! [{"n":1},{"n":2},{"n":3}] hope that helps`, 3},
		{"brackets inside strings", `plan: [{"n":1,"note":"a ] tricky \" value"}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out []map[string]any
			if err := DecodeJSON(tt.input, &out); err != nil {
				t.Fatalf("DecodeJSON returned error: %v", err)
			}
			if len(out) != tt.want {
				t.Errorf("decoded %d items, want %d", len(out), tt.want)
			}
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON("The persona is {\"name\": \"Olena\"}.", &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Name != "Olena" {
		t.Errorf("name = %q", out.Name)
	}
}

func TestDecodeJSONFailures(t *testing.T) {
	for _, input := range []string{"", "   ", "no json here", "[{unterminated"} {
		var out []any
		if err := DecodeJSON(input, &out); !errors.Is(err, ErrNoJSON) {
			t.Errorf("DecodeJSON(%q) = %v, want ErrNoJSON", input, err)
		}
	}
}
