package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"invoice-reconciliation-backend/internal/config"
	handler "invoice-reconciliation-backend/internal/handlers"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/services/explain"
	"invoice-reconciliation-backend/internal/services/ingest"
	"invoice-reconciliation-backend/internal/services/match"
	"invoice-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	invoiceRepo := repository.NewInvoiceRepository(db)
	transactionRepo := repository.NewBankTransactionRepository(db)

	var remote reconciliation.CandidateScorer
	if cfg.ScoringServiceURL != "" {
		remote = reconciliation.NewRemoteScorer(cfg.ScoringServiceURL, cfg.ScoringTimeout, cfg.ScoringTopN)
	}
	strategy := reconciliation.NewStrategy(remote, reconciliation.LocalScorer{})

	var provider explain.Provider
	if cfg.AIProvider != "mock" && cfg.AIAPIKey != "" {
		provider = explain.NewChatCompletionProvider(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AIMaxTokens, cfg.AITimeout)
	}

	reconService := reconciliation.NewService(invoiceRepo, transactionRepo, strategy)
	matchService := match.NewService(db)
	ingestService := ingest.NewService(transactionRepo)
	explainer := explain.NewGenerator(provider)

	reconHandler := handler.NewReconciliationHandler(
		reconService,
		matchService,
		ingestService,
		explainer,
		invoiceRepo,
		transactionRepo,
	)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	tenants := api.Group("/tenants/:tenantId")

	tenants.POST("/reconcile", reconHandler.Reconcile)
	tenants.POST("/explain", reconHandler.Explain)

	matches := tenants.Group("/matches")
	matches.GET("", reconHandler.ListCandidates)
	matches.POST("/:matchId/confirm", reconHandler.ConfirmMatch)
	matches.POST("/:matchId/reject", reconHandler.RejectMatch)

	transactions := tenants.Group("/transactions")
	transactions.GET("", reconHandler.ListTransactions)
	transactions.POST("/bulk-import", reconHandler.BulkImportTransactions)

	tenants.POST("/invoices", reconHandler.CreateInvoice)
}
