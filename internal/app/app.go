// Package app initializes and runs the jjbank web service.
// It configures logging, storage, the vendor clients, the workflows and
// routing, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/accounts"
	"github.com/patric-chuzhbe/jjbank/internal/auth"
	"github.com/patric-chuzhbe/jjbank/internal/config"
	"github.com/patric-chuzhbe/jjbank/internal/db/appwritedb"
	"github.com/patric-chuzhbe/jjbank/internal/db/jsondb"
	"github.com/patric-chuzhbe/jjbank/internal/db/memorystorage"
	"github.com/patric-chuzhbe/jjbank/internal/db/postgresdb"
	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/dwolla"
	"github.com/patric-chuzhbe/jjbank/internal/identity"
	"github.com/patric-chuzhbe/jjbank/internal/ipchecker"
	"github.com/patric-chuzhbe/jjbank/internal/linker"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/pagecache"
	"github.com/patric-chuzhbe/jjbank/internal/plaid"
	"github.com/patric-chuzhbe/jjbank/internal/router"
	"github.com/patric-chuzhbe/jjbank/internal/shareid"
	"github.com/patric-chuzhbe/jjbank/internal/transfer"
	"github.com/patric-chuzhbe/jjbank/internal/userdir"
)

type closer interface {
	Close() error
}

// App holds the configuration, the storage backend, the page cache and the
// HTTP handler of one running service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	pages       pagecache.Cache
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - building the identity, aggregation and payment-rail clients
// - setting up the workflows, the router and middleware
func New() (*App, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig builds the App from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	var err error
	app := &App{cfg: cfg}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	provider := identity.New(identity.Config{
		Endpoint: cfg.AppwriteEndpoint,
		Project:  cfg.AppwriteProject,
		Key:      cfg.AppwriteKey,
		Timeout:  cfg.VendorTimeout,
	})
	admin := provider.AdminClient()

	app.db, err = getStorageByType(ctx, cfg, admin)
	if err != nil {
		return nil, err
	}

	paymentRail, err := dwolla.New(dwolla.Config{
		Environment: cfg.DwollaEnv,
		Key:         cfg.DwollaKey,
		Secret:      cfg.DwollaSecret,
		BaseURL:     cfg.DwollaBaseURL,
		Timeout:     cfg.VendorTimeout,
	})
	if err != nil {
		return nil, app.abort(err)
	}

	bankData, err := plaid.New(plaid.Config{
		ClientID:    cfg.PlaidClientID,
		Secret:      cfg.PlaidSecret,
		Environment: cfg.PlaidEnv,
		BaseURL:     cfg.PlaidBaseURL,
		WebhookURL:  cfg.PlaidWebhookURL,
		Timeout:     cfg.VendorTimeout,
	})
	if err != nil {
		return nil, app.abort(err)
	}

	shareIDs, err := shareid.New(cfg.ShareableIDSecret)
	if err != nil {
		return nil, app.abort(err)
	}

	webhookSources, err := ipchecker.New(cfg.PlaidWebhookTrustedSubnet)
	if err != nil {
		return nil, app.abort(err)
	}

	app.pages, err = getPageCache(ctx, cfg)
	if err != nil {
		return nil, app.abort(err)
	}

	users := userdir.New(provider, admin, app.db, paymentRail, bankData, userdir.Config{
		CookieName:     cfg.SessionCookieName,
		UserCollection: cfg.UserCollectionID,
	})
	queries := accounts.New(app.db, bankData, accounts.Config{
		BankCollection:        cfg.BankCollectionID,
		TransactionCollection: cfg.TransactionCollectionID,
	})

	app.httpHandler = router.New(router.Dependencies{
		Auth:      auth.New(users),
		Users:     users,
		Linker:    linker.New(bankData, paymentRail, app.db, shareIDs, app.pages, cfg.BankCollectionID),
		Accounts:  queries,
		Transfers: transfer.New(queries, paymentRail, app.db, shareIDs, app.pages, cfg.TransactionCollectionID),
		Webhooks:  plaid.NewWebhookVerifier(bankData),

		WebhookSources: webhookSources,
		Pages:          app.pages,
		DB:             app.db,
	})

	return app, nil
}

// Handler exposes the router, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

func (a *App) abort(err error) error {
	return multierr.Append(err, a.closeResources())
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return multierr.Append(fmt.Errorf("server shutdown error: %w", err), a.closeResources())
		}

		return a.closeResources()

	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return a.closeResources()
		}
		return multierr.Append(fmt.Errorf("server error: %w", err), a.closeResources())
	}
}

func (a *App) closeResources() error {
	var err error
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
		a.db = nil
	}
	if c, ok := a.pages.(closer); ok {
		err = multierr.Append(err, c.Close())
		a.pages = nil
	}

	return err
}

// Close finalizes resources used by App such as storage and logging.
func (a *App) Close() {
	if err := a.closeResources(); err != nil {
		logger.Log.Errorw("closing resources", zap.Error(err))
	}
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.AppwriteDatabaseID != "" {
		return models.StorageTypeAppwrite
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(ctx context.Context, cfg *config.Config, admin *identity.AdminClient) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			ctx,
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
			postgresdb.WithDriverName(cfg.DatabaseDriver),
		)

	case models.StorageTypeAppwrite:
		return appwritedb.New(admin, cfg.AppwriteDatabaseID), nil

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}

func getPageCache(ctx context.Context, cfg *config.Config) (pagecache.Cache, error) {
	if cfg.RedisAddr == "" {
		return pagecache.NewMemory(cfg.PageCacheTTL), nil
	}

	cache, err := pagecache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.PageCacheTTL)
	if err != nil {
		return nil, err
	}

	return cache, nil
}
