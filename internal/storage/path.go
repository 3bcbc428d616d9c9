package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const answerPrefix = "answers"

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	answerKeyPattern     = regexp.MustCompile(`^answers/\d{4}/\d{2}/\d{2}/[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}\.parquet$`)
)

// AnswerArtifactPath returns answers/YYYY/MM/DD/<id>.parquet for the UTC day
// of createdAt.
func AnswerArtifactPath(createdAt time.Time, id string) (string, error) {
	if err := validatePathComponent(id, "artifact id"); err != nil {
		return "", err
	}
	ts := createdAt.UTC()
	return path.Join(
		answerPrefix,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		id+".parquet",
	), nil
}

// ValidateAnswerKey accepts only keys shaped like AnswerArtifactPath output.
func ValidateAnswerKey(key string) error {
	if !answerKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid artifact key: %q", key)
	}
	return nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
