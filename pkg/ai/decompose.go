package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/ternhq/tern/internal/util"
)

const (
	DecomposeMinParts = 2
	DecomposeMaxParts = 5
)

// DecompositionResponse is the response from the AI query decomposition call
type DecompositionResponse struct {
	SubQuestions []string `json:"sub_questions" jsonschema_description:"Self-contained sub-questions that together cover the original question."`
}

// CallQueryDecomposition calls the AI to split a complex question into
// self-contained sub-questions. The result is clamped to the
// DecomposeMinParts..DecomposeMaxParts range; fewer usable sub-questions
// than the minimum yields the original query as the single part.
func CallQueryDecomposition(
	ctx context.Context,
	query string,
	aiClient GraphAIClient,
	maxRetries int,
) (*DecompositionResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	query = gUtil.SanitizePostgresText(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	prompt := fmt.Sprintf(DecomposePrompt, query, DecomposeMinParts, DecomposeMaxParts)

	var res DecompositionResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "query_decomposition", "Split a question into sub-questions.", prompt, &res,
		)
	})
	if err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(res.SubQuestions))
	for _, q := range res.SubQuestions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		cleaned = append(cleaned, q)
		if len(cleaned) == DecomposeMaxParts {
			break
		}
	}
	if len(cleaned) < DecomposeMinParts {
		cleaned = []string{query}
	}
	res.SubQuestions = cleaned

	return &res, nil
}
