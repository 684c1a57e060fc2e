package json

import (
	"strings"
	"testing"
)

type verdict struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"pure object", `{"name":"a","value":1}`, `{"name":"a","value":1}`},
		{"pure array", `[1,2,3]`, `[1,2,3]`},
		{"prefix", `Here you go: {"name":"a"}`, `{"name":"a"}`},
		{"suffix", `{"name":"a"} hope that helps`, `{"name":"a"}`},
		{"both", `Sure! {"name":"a"} Done.`, `{"name":"a"}`},
		{"fenced", "```json\n{\"name\":\"a\"}\n```", `{"name":"a"}`},
		{"fenced no tag", "```\n[1]\n```", `[1]`},
		{"fence after text", "Result:\n```json\n{\"v\":2}\n```\nbye", `{"v":2}`},
		{"braces in strings", `note {"name":"a}b{"} tail }`, `{"name":"a}b{"}`},
		{"skips invalid first", `{oops} then {"ok":true}`, `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.response)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("just prose, no data")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no valid JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExtractUnbalanced(t *testing.T) {
	if _, err := Extract(`{"name": "a"`); err == nil {
		t.Error("expected error for unbalanced object")
	}
}

func TestDecode(t *testing.T) {
	v, err := Decode[verdict]("Answer:\n```json\n{\"name\": \"x\", \"value\": 42}\n```")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v.Name != "x" || v.Value != 42 {
		t.Errorf("unexpected value: %+v", v)
	}
}

func TestObjectRejectsArray(t *testing.T) {
	if _, err := Object(`[1,2]`); err == nil {
		t.Error("expected error decoding array as object")
	}
	obj, err := Object(`x {"a": 1} y`)
	if err != nil {
		t.Fatalf("Object failed: %v", err)
	}
	if obj["a"] != float64(1) {
		t.Errorf("unexpected object: %v", obj)
	}
}
