package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ternhq/tern/internal/server/middleware"
	"github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
)

// QueryEvidenceHandler answers a natural-language query with a bounded
// evidence bundle gathered from the group's knowledge graph.
func QueryEvidenceHandler(c echo.Context) error {
	type queryEvidenceBody struct {
		Query         string `json:"query" validate:"required"`
		GroupID       string `json:"group_id" validate:"required"`
		Mode          string `json:"mode" validate:"omitempty,oneof=single_hop multi_hop"`
		WeightProfile string `json:"weight_profile" validate:"omitempty,oneof=default entity structural thematic"`
	}

	type queryEvidenceResponse struct {
		Message string                    `json:"message"`
		QueryID string                    `json:"query_id,omitempty"`
		Bundle  *retrieval.EvidenceBundle `json:"bundle,omitempty"`
	}

	data := new(queryEvidenceBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryEvidenceResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryEvidenceResponse{
			Message: "Invalid request body",
		})
	}

	queryID, err := util.NewQueryID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, queryEvidenceResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	retriever := c.(*middleware.AppContext).App.Retriever

	bundle, err := retriever.Query(ctx, retrieval.Request{
		Query:         data.Query,
		GroupID:       data.GroupID,
		Mode:          retrieval.Mode(data.Mode),
		WeightProfile: data.WeightProfile,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrServicesExhausted) {
			logger.Error("[Query] Retrieval services exhausted", "query_id", queryID, "err", err)
			return c.JSON(http.StatusBadGateway, queryEvidenceResponse{
				Message: "Retrieval services are unavailable",
				QueryID: queryID,
			})
		}
		logger.Error("[Query] Retrieval failed", "query_id", queryID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryEvidenceResponse{
			Message: "Internal server error",
			QueryID: queryID,
		})
	}

	return c.JSON(http.StatusOK, queryEvidenceResponse{
		Message: "Query answered successfully",
		QueryID: queryID,
		Bundle:  bundle,
	})
}
