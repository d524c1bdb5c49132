package router

import (
	accountapp "github.com/controlhq/account-service/internal/application"
	"github.com/controlhq/account-service/internal/container"
	pginfra "github.com/controlhq/account-service/internal/infrastructure/postgres"
	handlers "github.com/controlhq/account-service/internal/interface/http"
	"github.com/controlhq/account-service/internal/router/modules"
)

// InitModules builds the account module from the container singletons and
// registers it. Called once during startup.
func InitModules(r *Registry) {
	cfg := container.GetConfig()

	store := pginfra.NewDocumentStore(container.GetPGPool(), cfg.StoreTimeout)
	repo := pginfra.NewAccountRepository(store)

	service := accountapp.NewService(
		repo,
		container.GetRedis(),
		container.GetLogger(),
		container.GetES(),
		cfg.ESAccountsIndex,
		cfg.ProfileCacheTTL,
		cfg.LoginIDAttempts,
	)

	handler := handlers.NewAccountHandler(service, container.GetLogger())

	r.Add(modules.NewAccountModule(handler))
}
