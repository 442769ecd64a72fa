package domain

import "testing"

func TestPayloadCloneIsIndependent(t *testing.T) {
	original := Payload{
		"title": "a.pdf",
		"analysis": map[string]any{
			"sentiment": "POSITIVE",
		},
		"lines": []any{"one", "two"},
	}

	clone := original.Clone()
	clone["title"] = "changed"
	clone["analysis"].(map[string]any)["sentiment"] = "NEGATIVE"
	clone["lines"].([]any)[0] = "mutated"

	if original["title"] != "a.pdf" {
		t.Fatalf("clone mutation leaked into original title: %v", original["title"])
	}
	if original["analysis"].(map[string]any)["sentiment"] != "POSITIVE" {
		t.Fatalf("clone mutation leaked into nested map")
	}
	if original["lines"].([]any)[0] != "one" {
		t.Fatalf("clone mutation leaked into slice")
	}
}

func TestMergeAdditiveNeverRemovesKeys(t *testing.T) {
	accumulated := Payload{
		"title":  "a.pdf",
		"source": "docs",
	}

	merged := accumulated.MergeAdditive(Payload{"text": "Hello world"})

	for _, key := range []string{"title", "source", "text"} {
		if _, ok := merged[key]; !ok {
			t.Fatalf("expected key %q after merge, got %v", key, merged)
		}
	}
}

func TestMergeAdditiveOverwritesOnReplay(t *testing.T) {
	accumulated := Payload{"text": "old"}

	merged := accumulated.MergeAdditive(Payload{"text": "new"})

	if merged["text"] != "new" {
		t.Fatalf("expected overwritten text, got %v", merged["text"])
	}
}

func TestExecutionIDForIsDeterministic(t *testing.T) {
	ref := DocumentRef{Container: "docs", Key: "a.pdf"}

	first := ExecutionIDFor(ref)
	second := ExecutionIDFor(ref)
	if first != second {
		t.Fatalf("expected stable execution id, got %s and %s", first, second)
	}

	other := ExecutionIDFor(DocumentRef{Container: "docs", Key: "b.pdf"})
	if other == first {
		t.Fatalf("distinct documents must map to distinct executions")
	}
}
