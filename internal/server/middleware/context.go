package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/ternhq/tern/pkg/ai"
	"github.com/ternhq/tern/pkg/retrieval"
	"github.com/ternhq/tern/pkg/store"
)

type App struct {
	DBConn    *pgxpool.Pool
	Store     store.GraphStore
	AiClient  ai.GraphAIClient
	Retriever *retrieval.GraphRetrievalClient
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(
	db *pgxpool.Pool,
	graphStore store.GraphStore,
	aiClient ai.GraphAIClient,
	retriever *retrieval.GraphRetrievalClient,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			app := &App{
				DBConn:    db,
				Store:     graphStore,
				AiClient:  aiClient,
				Retriever: retriever,
			}
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
