package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/medinsight/medinsight/internal/llm"
	"github.com/medinsight/medinsight/internal/prompts"
)

// ChatSynthesizer asks a chat model for SQL using the catalog's prompts.
type ChatSynthesizer struct {
	completer llm.Completer
	catalog   *prompts.Catalog
}

func NewChatSynthesizer(completer llm.Completer, catalog *prompts.Catalog) (*ChatSynthesizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("prompt catalog is required")
	}
	return &ChatSynthesizer{completer: completer, catalog: catalog}, nil
}

func (s *ChatSynthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	prompt, err := s.buildPrompt(req)
	if err != nil {
		return Result{}, err
	}
	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize sql: %w", err)
	}
	sql, err := ExtractSQL(reply)
	if err != nil {
		return Result{Reply: reply}, fmt.Errorf("synthesize sql: %w", err)
	}
	return Result{SQL: sql, Reply: reply}, nil
}

func (s *ChatSynthesizer) buildPrompt(req Request) (llm.Prompt, error) {
	system, err := s.catalog.Render(prompts.SynthesisSystem, map[string]any{
		"Rules":    s.catalog.Rules,
		"Synonyms": s.catalog.Synonyms,
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	user, err := s.catalog.Render(prompts.SynthesisUser, map[string]any{
		"Schema":       strings.TrimSpace(req.Schema),
		"Examples":     s.catalog.Examples,
		"History":      req.History,
		"Instructions": strings.TrimSpace(req.Instructions),
		"Question":     strings.TrimSpace(req.Question),
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{Operation: "synthesize", System: system, User: user}, nil
}
