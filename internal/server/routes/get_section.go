package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ternhq/tern/internal/server/middleware"
	"github.com/ternhq/tern/pkg/logger"
)

// GetSectionHandler returns one section of a group's knowledge graph, so
// downstream consumers can resolve the section ids cited by an evidence
// bundle into titles and paths.
func GetSectionHandler(c echo.Context) error {
	type getSectionParams struct {
		ID      string `param:"id" validate:"required"`
		GroupID string `query:"group_id" validate:"required"`
	}

	params := new(getSectionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	graphStore := c.(*middleware.AppContext).App.Store

	section, err := graphStore.GetSectionByID(ctx, params.GroupID, params.ID)
	if err != nil {
		logger.Error("[Sections] Lookup failed", "section_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if section == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Section not found"})
	}

	return c.JSON(http.StatusOK, section)
}
