package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/utils"
)

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// Analyzer extracts business profiles from capability statements.
type Analyzer struct {
	generator jsonGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	maxStatementRunes   = 20000

	systemInstruction = "You are a business analyst specializing in government contracting. " +
		"Extract structured business profiles from capability statements. " +
		"Be precise, factual, and focus on quantifiable capabilities."
)

func NewAnalyzer(generator jsonGenerator, maxLogLength int, logger *zap.Logger) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, statement string) (*rfp.BusinessProfile, error) {
	statement = sanitizeStatement(statement)
	if statement == "" {
		return nil, errors.New("capability statement must not be empty")
	}

	prompt := buildPrompt(statement)

	a.logger.Debug("gemini analyze request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		utils.PreviewField("prompt", prompt, a.maxLogLen),
	)

	raw, err := a.generator.GenerateJSON(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini analyze response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		utils.PreviewField("response", raw, a.maxLogLen),
	)

	profile, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

func buildPrompt(statement string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Capability statement:\n{{STATEMENT}}\n\nJSON Response:"
	}
	return strings.ReplaceAll(template, "{{STATEMENT}}", statement)
}

// sanitizeStatement bounds the statement length and neutralizes bracketed section headers
// so the document cannot impersonate prompt sections.
func sanitizeStatement(statement string) string {
	statement = strings.TrimSpace(strings.ReplaceAll(statement, "\r\n", "\n"))
	statement = strings.NewReplacer("[", "(", "]", ")", "{{", "(", "}}", ")").Replace(statement)

	runes := []rune(statement)
	if len(runes) > maxStatementRunes {
		statement = string(runes[:maxStatementRunes])
	}

	return statement
}

func parseResponse(raw string) (*rfp.BusinessProfile, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	profile, err := rfp.DecodeProfile(data)
	if err != nil {
		return nil, err
	}

	profile.ConfidenceScore = max(0, min(profile.ConfidenceScore, 1))

	return profile, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Tolerate prose around the object.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	return raw
}
