package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "github.com/ternhq/tern/internal/server/middleware"
	"github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/ai"
	oai "github.com/ternhq/tern/pkg/ai/ollama"
	gai "github.com/ternhq/tern/pkg/ai/openai"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
	pgxstore "github.com/ternhq/tern/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := util.GetEnv("DATABASE_URL")
	if err := runMigrations(dsn); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Fatal("Failed to parse database config", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	aiClient := newAIClient()

	if util.GetEnvBool("AI_PRELOAD", false) {
		go func() {
			if err := aiClient.LoadModel(ctx); err != nil {
				logger.Warn("[Server] Model preload failed", "err", err)
			}
		}()
	}

	storageClient, err := pgxstore.NewGraphDBStorageWithConnection(ctx, conn)
	if err != nil {
		logger.Fatal("Failed to connect to graph storage", "err", err)
	}

	retriever := retrieval.NewGraphRetrievalClient(aiClient, storageClient, retrievalOptionsFromEnv()...)

	e.Use(mid.AppContextMiddleware(conn, storageClient, aiClient, retriever))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func newAIClient() ai.GraphAIClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			AnalysisModel:   util.GetEnv("AI_CHAT_ANALYZE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			AnalysisModel:   util.GetEnv("AI_CHAT_ANALYZE_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}
}

func retrievalOptionsFromEnv() []retrieval.RetrievalOption {
	return []retrieval.RetrievalOption{
		retrieval.WithTierTimeout(time.Duration(util.GetEnvNumeric("RETRIEVAL_TIER_TIMEOUT_SEC", 30)) * time.Second),
		retrieval.WithTokenBudget(
			int(util.GetEnvNumeric("RETRIEVAL_TOKEN_BUDGET", 6000)),
			util.GetEnvString("RETRIEVAL_TOKEN_ENCODER", "o200k_base"),
		),
		retrieval.WithConfidenceThreshold(util.GetEnvFloat("RETRIEVAL_CONFIDENCE_THRESHOLD", 0.5)),
		retrieval.WithUniformFallbackSeed(util.GetEnvBool("RETRIEVAL_UNIFORM_FALLBACK", false)),
	}
}

// runMigrations applies the SQL migrations before the first pool
// connection so queries never race the schema.
func runMigrations(dsn string) error {
	dir := util.GetEnvString("MIGRATIONS_DIR", "migrations")
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
