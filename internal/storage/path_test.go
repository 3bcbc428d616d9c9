package storage

import (
	"testing"
	"time"
)

func TestAnswerArtifactPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 22, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := AnswerArtifactPath(ts, "9f1c2b6e-0d8a-4c1e-9a53-5d2f3e4b7a10")
	if err != nil {
		t.Fatalf("AnswerArtifactPath() error = %v", err)
	}
	want := "answers/2026/02/20/9f1c2b6e-0d8a-4c1e-9a53-5d2f3e4b7a10.parquet"
	if key != want {
		t.Fatalf("AnswerArtifactPath() = %q, want %q", key, want)
	}
	if err := ValidateAnswerKey(key); err != nil {
		t.Fatalf("ValidateAnswerKey(%q) error = %v", key, err)
	}
}

func TestAnswerArtifactPathRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"", "../oops", "a/b", ".hidden"} {
		if _, err := AnswerArtifactPath(time.Now(), id); err == nil {
			t.Fatalf("expected invalid id error for %q", id)
		}
	}
}

func TestValidateAnswerKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"answers/2026/02/20/../../secret.parquet",
		"other/2026/02/20/x.parquet",
		"answers/2026/2/20/x.parquet",
		"answers/2026/02/20/x.csv",
	} {
		if err := ValidateAnswerKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}
