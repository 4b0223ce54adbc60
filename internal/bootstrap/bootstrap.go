package bootstrap

import (
	"context"
	"fmt"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/events"
	"github.com/ibheelz/Todoalrojo-sub002/internal/messaging"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	authHandler "github.com/ibheelz/Todoalrojo-sub002/internal/auth/handler"
	authProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/auth/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/clients/mail"
	"github.com/ibheelz/Todoalrojo-sub002/internal/clients/sms"
	identityHandler "github.com/ibheelz/Todoalrojo-sub002/internal/identity/handler"
	identityProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/identity/processor"
	journeyHandler "github.com/ibheelz/Todoalrojo-sub002/internal/journey/handler"
	journeyProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/journey/processor"
	messagingHandler "github.com/ibheelz/Todoalrojo-sub002/internal/messaging/handler"
	operatorsHandler "github.com/ibheelz/Todoalrojo-sub002/internal/operators/handler"
	recyclingHandler "github.com/ibheelz/Todoalrojo-sub002/internal/recycling/handler"
	recyclingProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/recycling/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store     store.Store
	Logger    *observability.Logger
	Publisher *events.Publisher
	WSHub     *events.WSHub

	// Handlers
	AuthHandler      authHandler.Handler
	IdentityHandler  identityHandler.Handler
	JourneyHandler   journeyHandler.Handler
	MessagingHandler messagingHandler.Handler
	RecyclingHandler recyclingHandler.Handler
	OperatorsHandler operatorsHandler.Handler

	// Background workers
	DispatchWorker *messaging.Worker
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize dashboard event fan-out
	deps.Publisher = events.NewPublisher(logger)
	deps.WSHub = events.NewWSHub(logger)
	deps.Publisher.Subscribe(deps.WSHub)

	// Initialize channel provider clients
	mailClient, err := mail.NewResendClient(cfg.Senders.ResendAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}
	smsClient := sms.NewTwilioClient(cfg.Senders.TwilioAccountSID, cfg.Senders.TwilioAuthToken, logger)

	// Initialize identity resolution
	identityProc := identityProcessor.New(deps.Store, logger)
	deps.IdentityHandler = identityHandler.New(identityProc, logger)

	// Initialize message scheduling and dispatch
	scheduler := messaging.NewScheduler(deps.Store, cfg.Throttle, logger)
	dispatcher := messaging.NewDispatcher(deps.Store, mailClient, smsClient, deps.Publisher, cfg.Senders, cfg.Dispatcher, logger)
	deps.DispatchWorker = messaging.NewWorker(dispatcher, logger, cfg.Dispatcher.SweepInterval, cfg.Dispatcher.BatchLimit)
	deps.MessagingHandler = messagingHandler.New(dispatcher, cfg.Dispatcher.BatchLimit, logger)

	// Initialize journey processing
	journeyProc := journeyProcessor.New(deps.Store, &identityProc, scheduler, deps.Publisher, logger)
	deps.JourneyHandler = journeyHandler.New(journeyProc, logger)

	// Initialize recycling
	recyclingProc := recyclingProcessor.New(deps.Store, deps.Publisher, logger)
	deps.RecyclingHandler = recyclingHandler.New(recyclingProc, logger)

	// Initialize admin auth and reference data management
	authProc := authProcessor.New(cfg.Auth, logger)
	deps.AuthHandler = authHandler.New(authProc, logger)
	deps.OperatorsHandler = operatorsHandler.New(deps.Store, logger)

	return deps, nil
}
