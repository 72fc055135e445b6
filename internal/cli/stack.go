package cli

import (
	"context"

	"gagyebu/internal/backend"
	"gagyebu/internal/broker"
	"gagyebu/internal/config"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/services"
)

// Stack is the service graph shared by the commands.
type Stack struct {
	Backend     *backend.Result
	Metrics     *metrics.Metrics
	Book        *services.HoldingsBook
	Household   *services.HouseholdService
	Invitations *services.InvitationService
	Brokers     *services.BrokerService
}

// BuildStack opens the configured backend and wires the services on top
// of it. Call Close when done.
func BuildStack(ctx context.Context, cfg *config.Config, logger *applog.Logger, m *metrics.Metrics) (*Stack, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger, m).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	deps := services.Deps{Repo: res.Repo, Logger: logger, Metrics: m}
	// A nil *amqp.Client must not become a non-nil interface.
	if res.Publisher != nil {
		deps.Publisher = res.Publisher
	}

	book := services.NewHoldingsBook()
	household := services.NewHouseholdService(deps, book, services.HouseholdConfig{
		CacheSize:       cfg.StateCacheSize,
		CacheTTL:        cfg.StateCacheTTL,
		IncludeDeposits: cfg.IncludeDeposits,
	})
	gateway := broker.NewGateway(broker.NewClient(cfg.BrokerTimeout), res.Repo.Connections())

	return &Stack{
		Backend:     res,
		Metrics:     m,
		Book:        book,
		Household:   household,
		Invitations: services.NewInvitationService(deps, household),
		Brokers:     services.NewBrokerService(deps, gateway, book, household),
	}, nil
}

// Close releases the backend.
func (s *Stack) Close(context.Context) error {
	return s.Backend.Cleanup()
}
