package service

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/AvaProtocol/ap-bundler/version"
)

func (svc *Service) initSentry() {
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN == "" {
		svc.logger.Info("SENTRY_DSN not found, Sentry integration is disabled.")
		return
	}

	sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
	if sentryEnv == "" {
		sentryEnv = string(svc.config.Environment)
		svc.logger.Infof("SENTRY_ENVIRONMENT not set, falling back to config environment: %s", sentryEnv)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryDSN,
		Release:     version.String(),
		Environment: sentryEnv,
	})
	if err != nil {
		svc.logger.Errorf("Sentry initialization failed: %v", err)
		return
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("chain_id", svc.config.ChainID.String())
		scope.SetTag("account", svc.account.Address.Hex())
	})
	svc.logger.Infof("Sentry initialized successfully for environment: %s", sentryEnv)
}

// goSafe runs fn in a goroutine, reporting a panic to Sentry before letting
// it crash the process.
func goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sentry.CurrentHub().Recover(r)
				sentryFlushSafely(2 * time.Second)
				panic(r)
			}
		}()
		fn()
	}()
}

// sentryFlushSafely is a no-op when Sentry was never initialized.
func sentryFlushSafely(timeout time.Duration) {
	_ = sentry.Flush(timeout)
}
