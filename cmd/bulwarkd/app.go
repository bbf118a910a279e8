package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/config"
	"github.com/goliatone/go-bulwark/repository"
	"github.com/goliatone/go-bulwark/social"
	"github.com/goliatone/go-bulwark/social/providers"
	"github.com/uptrace/bun"
)

// App holds every assembled lifecycle component.
type App struct {
	config    config.Config
	logger    *bulwark.SlogLogger
	db        *bun.DB
	repo      bulwark.RepositoryManager
	keys      *bulwark.SigningKeyStore
	tokens    *bulwark.TokenStrategy
	directory *bulwark.Directory
	accounts  *bulwark.AccountManager
	auth      *bulwark.Authenticator
	magic     *bulwark.MagicCodeService
	social    *social.Registry
	login     *bulwark.SocialLogin
	reaper    *bulwark.Reaper
}

func newLogger() *bulwark.SlogLogger {
	level := slog.LevelInfo
	if os.Getenv("BULWARK_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return bulwark.NewSlogLogger(slog.New(handler))
}

// openApp loads configuration and connects the database. Components are
// assembled by wire.
func openApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	db, err := repository.Open(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		repo:   repository.NewRepositoryManager(db),
	}
	app.repo.MustValidate()
	return app, nil
}

func (a *App) wire() error {
	cfg := a.config
	sink := bulwark.ActivitySinkFunc(func(_ context.Context, event bulwark.ActivityEvent) error {
		a.logger.With("event", string(event.EventType), "account_id", event.AccountID).
			Info("activity recorded")
		return nil
	})

	a.keys = bulwark.NewSigningKeyStore(a.repo.SigningKeys()).
		WithRetention(cfg.KeyRetention()).
		WithLogger(a.logger.With("component", "signing_keys"))

	a.tokens = bulwark.NewTokenStrategy(a.keys, cfg.TokenIssuer, cfg.TokenAudience...).
		WithAccessTTL(cfg.AccessTokenTTL()).
		WithRefreshTTL(cfg.RefreshTokenTTL()).
		WithLogger(a.logger.With("component", "tokens"))

	policy := bulwark.NewPasswordPolicy(
		bulwark.LengthRule(cfg.PasswordMinLength, cfg.PasswordMaxLength),
		bulwark.LowercaseRule(),
		bulwark.UppercaseRule(),
		bulwark.SymbolRule(),
		bulwark.DigitRule(),
	)

	a.directory = bulwark.NewDirectory(a.repo.Accounts()).
		WithPasswordPolicy(policy).
		WithHasher(bulwark.BcryptHasher{Cost: cfg.BcryptCost}).
		WithVerificationTTL(cfg.VerificationTTL()).
		WithForgotTTL(cfg.ForgotTTL()).
		WithActivitySink(sink).
		WithLogger(a.logger.With("component", "directory"))

	a.accounts = bulwark.NewAccountManager(a.directory, a.tokens)

	a.auth = bulwark.NewAuthenticator(a.directory, a.tokens, a.repo.Tokens(), a.repo.Authorization()).
		WithTombstoneTTL(cfg.RefreshTokenTTL()).
		WithActivitySink(sink).
		WithLogger(a.logger.With("component", "authenticator"))

	a.magic = bulwark.NewMagicCodeService(a.directory, a.repo.MagicCodes(), a.auth).
		WithTTL(cfg.MagicCodeTTL()).
		WithActivitySink(sink).
		WithLogger(a.logger.With("component", "magic_codes"))

	registry, err := providers.NewRegistry(cfg.SocialConfig())
	if err != nil {
		return fmt.Errorf("social providers: %w", err)
	}
	a.social = registry
	a.login = bulwark.NewSocialLogin(a.directory, registry, a.auth).
		WithActivitySink(sink).
		WithLogger(a.logger.With("component", "social_login"))

	a.reaper = bulwark.NewReaper().
		WithInterval(cfg.SweepInterval()).
		WithLogger(a.logger.With("component", "reaper")).
		WithSweeper(bulwark.SweepMagicCodes, a.magic.PurgeExpired).
		WithSweeper(bulwark.SweepAccountTokens, a.directory.PurgeExpiredTokens).
		WithSweeper(bulwark.SweepRetiredPairs, bulwark.RetiredPairSweeper(a.repo.Tokens(), nil)).
		WithSweeper(bulwark.SweepSigningKeys, a.keys.PurgeRetired)

	a.logger.Info("components ready: social providers %v, smtp enabled %t", registry.Providers(), cfg.EnableSMTP)
	return nil
}

func (a *App) Close() error {
	if a.social != nil {
		if err := a.social.Close(); err != nil {
			a.logger.Warn("closing social providers: %v", err)
		}
	}
	return a.db.Close()
}
