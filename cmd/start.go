package cmd

import (
	"crypto/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/eshiol/j3-rest-api/pkg/access/rbac"
	"github.com/eshiol/j3-rest-api/pkg/api"
	fiberapi "github.com/eshiol/j3-rest-api/pkg/api/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth"
	fiberauth "github.com/eshiol/j3-rest-api/pkg/auth/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth/token"
	"github.com/eshiol/j3-rest-api/pkg/content"
	"github.com/eshiol/j3-rest-api/pkg/metrics"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"github.com/eshiol/j3-rest-api/pkg/user"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long: `Start serves the configured services, or the built-in articles service
when config.yaml defines none, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		logger, err := configureLogging()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := loadConfigFile(viper.GetViper(), viper.GetString("config")); err != nil {
			return err
		}

		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

		// Set up the storage backend.
		s, err := storage.Open(newStorageConfig(logger))
		defer func() {
			err = errors.CombineErrors(err, s.Close())
		}()
		if err != nil {
			return err
		}

		app, err := configureServer(s, logger)
		if err != nil {
			return err
		}

		errC := make(chan error, 1)
		go func() { errC <- app.Listen(viper.GetString("listen-address")) }()
		logger.Info("listening", zap.String("address", viper.GetString("listen-address")))

		select {
		case <-sigC:
			logger.Info("shutting down")
			return app.Shutdown()
		case err := <-errC:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringP(
		"listen-address",
		"l",
		"127.0.0.1:9090",
		"Address the HTTP server listens on.",
	)

	startCmd.Flags().StringP(
		"data",
		"d",
		"j3-data",
		"Dirname where the server will store its data.",
	)

	startCmd.Flags().Bool(
		"mem",
		false,
		"Keep all data in memory.",
	)

	startCmd.Flags().Bool(
		"debug",
		false,
		"Log at debug level in a human readable format.",
	)

	startCmd.Flags().StringP(
		"config",
		"c",
		"",
		"Path of the config file. Defaults to config.yaml in the working directory.",
	)

	startCmd.Flags().String(
		"base-url",
		"",
		"Base URL advertised in documents. Defaults to the URL each request was addressed to.",
	)

	startCmd.Flags().String(
		"token-secret",
		"",
		"Secret used to sign tokens. A random secret is generated when empty.",
	)

	startCmd.Flags().Duration(
		"token-expiration",
		24*time.Hour,
		"Lifetime of issued tokens.",
	)

	startCmd.Flags().Bool(
		"strict-if-match",
		false,
		"Reject updates and deletes without an If-Match header.",
	)

	startCmd.Flags().Bool(
		"absolute-hrefs",
		false,
		"Rewrite relative hrefs in documents against the base URL.",
	)

	startCmd.Flags().String(
		defaultEffectKey,
		"allow",
		"Effect applied to authenticated requests no policy covers (allow or deny).",
	)

	if err := viper.BindPFlags(startCmd.Flags()); err != nil {
		panic(err)
	}
}

func newStorageConfig(logger *zap.Logger) storage.Config {
	return storage.Config{
		MemBacked: viper.GetBool("mem"),
		Dirname:   viper.GetString("data"),
		Logger:    logger.Named("storage"),
	}
}

func configureLogging() (*zap.Logger, error) {
	if viper.GetBool("debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func configureServer(s storage.Storage, logger *zap.Logger) (*fiber.App, error) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberrecover.New())

	m := metrics.New()
	app.Use(m.Middleware())
	m.BindTo(app)
	(&content.Service{}).BindTo(app)

	tokens, err := configureTokens(logger)
	if err != nil {
		return nil, err
	}
	authSvc := &fiberauth.Service{
		User:   &user.Service{DB: s.KV},
		Token:  tokens,
		DB:     s.KV,
		Auth:   auth.MultiAuthenticator{&auth.KV{DB: s.KV}},
		Logger: logger,
	}
	authSvc.BindTo(app)

	enforcer, err := configureAccess(s.KV, logger)
	if err != nil {
		return nil, err
	}

	defs, fsys, err := serviceDefinitions(viper.GetViper())
	if err != nil {
		return nil, err
	}
	records := store.Open(store.Config{DB: s.KV, Logger: logger})
	transforms := transform.NewRegistry()
	router := app.Group("", fiberauth.GuestTokenMiddleware(tokens))
	for _, def := range defs {
		svc, err := api.Load(def, fsys, transforms, logger)
		if err != nil {
			return nil, err
		}
		m.DefinitionErrors.WithLabelValues(svc.Name).Add(float64(len(svc.Skipped)))
		fiberapi.New(fiberapi.Config{
			API:           svc,
			Store:         records,
			Enforcer:      enforcer,
			Metrics:       m,
			Logger:        logger,
			BaseURL:       viper.GetString("base-url"),
			StrictIfMatch: viper.GetBool("strict-if-match"),
			AbsoluteHrefs: viper.GetBool("absolute-hrefs"),
		}).BindTo(router)
	}
	return app, nil
}

func configureTokens(logger *zap.Logger) (*token.Service, error) {
	secret := []byte(viper.GetString("token-secret"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "[cmd] - generate token secret")
		}
		logger.Warn("no token secret configured, issued tokens will not survive a restart")
	}
	return &token.Service{Secret: secret, Expiration: viper.GetDuration("token-expiration")}, nil
}

// configureAccess writes the configured policies and returns the enforcer
// guarding every service.
func configureAccess(db *pebble.DB, logger *zap.Logger) (access.Enforcer, error) {
	def, err := parseEffect(viper.GetString(defaultEffectKey))
	if err != nil {
		return nil, errors.Wrap(err, "[cmd] - default effect")
	}
	ps, err := policies(viper.GetViper())
	if err != nil {
		return nil, err
	}
	leg := &rbac.Legislator{DB: db}
	txn := storage.BeginTxn(db)
	defer func() { _ = txn.Close() }()
	for _, p := range ps {
		if err := leg.Create(txn, p); err != nil {
			return nil, err
		}
	}
	if err := txn.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	logger.Info("configured access", zap.Int("policies", len(ps)))
	return rbac.NewEnforcer(leg, def), nil
}
