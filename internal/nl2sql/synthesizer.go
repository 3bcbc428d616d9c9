// Package nl2sql turns a natural-language question, the schema description
// and recent conversation into one DuckDB statement.
package nl2sql

import (
	"context"
	"errors"
	"strings"
)

var ErrNoSQL = errors.New("model reply contains no SQL statement")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type Request struct {
	Question string
	// Schema is the rendered schema description.
	Schema  string
	History []Turn
	// Instructions carries repair guidance from the previous attempt.
	Instructions string
}

type Result struct {
	SQL string `json:"sql"`
	// Reply is the raw model output the statement was extracted from.
	Reply string `json:"reply"`
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Window returns the last n turns of history with blank turns dropped.
func Window(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	kept := make([]Turn, 0, len(history))
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := turn.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		kept = append(kept, Turn{Role: role, Text: text})
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}
