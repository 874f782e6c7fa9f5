package resolver

import (
	"testing"
)

func TestClassifyExistingPath(t *testing.T) {
	d := t.TempDir()
	ref, err := Classify(d)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if ref.Kind != KindLocalPath || ref.Path != d {
		t.Fatalf("expected local path %q, got %+v", d, ref)
	}
}

func TestClassifyCatalogID(t *testing.T) {
	ref, err := Classify("mlx-community/Mistral-7B-Instruct-4bit")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if ref.Kind != KindCatalogID || ref.ID != "mlx-community/Mistral-7B-Instruct-4bit" {
		t.Fatalf("expected catalog id, got %+v", ref)
	}
}

func TestClassifyMissingAbsolutePath(t *testing.T) {
	_, err := Classify("/definitely/not/here")
	if err == nil || !IsInvalidPath(err) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
}

func TestClassifyEmpty(t *testing.T) {
	_, err := Classify("  ")
	if err == nil || !IsInvalidPath(err) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	a, err := Classify("org/model")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	b, err := Classify("org/model")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical classification, got %+v vs %+v", a, b)
	}
}
