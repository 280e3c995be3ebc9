package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/common"
)

const classifySummaryMaxRunes = 400

// ScopeClassificationResponse is the response from the AI scope classification call
type ScopeClassificationResponse struct {
	SectionIDs    []string `json:"section_ids" jsonschema_description:"Ids of the sections the query is about, from the provided list."`
	MultiDocument bool     `json:"multi_document" jsonschema_description:"True if answering requires material from more than one document."`
	Comparison    bool     `json:"comparison" jsonschema_description:"True if the query compares two or more subjects."`
}

// CallScopeClassification calls the AI to pick the sections a query is
// about and to flag multi-document or comparison scope. Returned ids are
// filtered against the candidate list, so the result never references a
// section that was not offered.
func CallScopeClassification(
	ctx context.Context,
	query string,
	sections []common.Section,
	aiClient GraphAIClient,
	maxRetries int,
) (*ScopeClassificationResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	query = gUtil.SanitizePostgresText(query)
	if query == "" || len(sections) == 0 {
		return &ScopeClassificationResponse{SectionIDs: []string{}}, nil
	}

	var sectionData strings.Builder
	for _, s := range sections {
		summary := gUtil.TruncateRunes(s.Summary, classifySummaryMaxRunes)
		fmt.Fprintf(&sectionData, "- id: %s, title: %s, path: %s\n  summary: %s\n", s.ID, s.Title, s.Path, summary)
	}
	prompt := fmt.Sprintf(ScopeClassificationPrompt, query, sectionData.String())

	var res ScopeClassificationResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "scope_classification", "Classify query scope against document sections.", prompt, &res,
		)
	})
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		known[s.ID] = struct{}{}
	}
	filtered := make([]string, 0, len(res.SectionIDs))
	for _, id := range res.SectionIDs {
		if _, ok := known[id]; ok {
			filtered = append(filtered, id)
		}
	}
	res.SectionIDs = filtered

	return &res, nil
}
