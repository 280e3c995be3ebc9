package ai

import (
	"context"
	"fmt"

	gUtil "github.com/ternhq/tern/internal/util"
)

// QueryEntitiesResponse is the response from the AI query entity recognition call
type QueryEntitiesResponse struct {
	Mentions []string `json:"mentions" jsonschema_description:"Entity or concept mentions found in the query, in query order."`
}

// CallQueryEntityExtraction calls the AI to recognize entity mentions in a
// user query. Mentions come back raw; callers normalize them before any
// matching against node names or aliases.
func CallQueryEntityExtraction(
	ctx context.Context,
	query string,
	aiClient GraphAIClient,
	maxRetries int,
) (*QueryEntitiesResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	query = gUtil.SanitizePostgresText(query)
	if query == "" {
		return &QueryEntitiesResponse{Mentions: []string{}}, nil
	}

	prompt := fmt.Sprintf(QueryEntitiesPrompt, query)

	var res QueryEntitiesResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "query_entities", "Recognize entity mentions in a search query.", prompt, &res,
		)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
