package processor

import (
	"context"
	"errors"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/google/uuid"
)

var (
	ErrNoIdentifiers     = errors.New("signal carries no identifiers")
	ErrIdentityConflict  = errors.New("identifier bound to a different customer")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrResolutionFailure = errors.New("failed to resolve identity")
)

// IdentityProcessor maps inbound signals (click id, email, phone) to a
// canonical customer, creating one when nothing matches. Races between
// concurrent calls with the same identifier collapse on the UNIQUE(type,
// value) constraint: the loser re-reads and adopts the winner's customer.
type IdentityProcessor struct {
	store  IdentityStore
	logger *observability.Logger
}

func New(store IdentityStore, logger *observability.Logger) IdentityProcessor {
	return IdentityProcessor{
		store:  store,
		logger: logger,
	}
}

// Signal is an inbound identity signal. Lookup priority is click id, then
// email, then phone.
type Signal struct {
	ClickID string
	Email   string
	Phone   string
}

// identifiers returns the signal's (type, value) pairs in priority order
func (s Signal) identifiers() []store.IdentifierPair {
	var pairs []store.IdentifierPair
	if s.ClickID != "" {
		pairs = append(pairs, store.IdentifierPair{Type: store.IdentifierTypeClickID, Value: s.ClickID})
	}
	if s.Email != "" {
		pairs = append(pairs, store.IdentifierPair{Type: store.IdentifierTypeEmail, Value: s.Email})
	}
	if s.Phone != "" {
		pairs = append(pairs, store.IdentifierPair{Type: store.IdentifierTypePhone, Value: s.Phone})
	}
	return pairs
}

// Resolve maps a signal to a customer, creating customer and identifiers
// atomically on a full miss. When a supplied identifier is already bound to a
// different customer than the one resolved, ErrIdentityConflict is returned
// and nothing is merged.
func (p *IdentityProcessor) Resolve(ctx context.Context, signal Signal) (store.Customer, error) {
	pairs := signal.identifiers()
	if len(pairs) == 0 {
		return store.Customer{}, ErrNoIdentifiers
	}

	// One retry: a create that loses the insert race falls through to a
	// lookup that is then guaranteed to hit.
	for attempt := 0; attempt < 2; attempt++ {
		customer, found, err := p.lookup(ctx, pairs)
		if err != nil {
			return store.Customer{}, err
		}
		if found {
			if err := p.bindRemaining(ctx, customer, pairs); err != nil {
				return store.Customer{}, err
			}
			if err := p.fillContact(ctx, customer, signal); err != nil {
				p.logger.Error(ctx, "failed to fill customer contact", err)
			}
			return customer, nil
		}

		customer, err = p.store.CreateCustomerWithIdentifiers(ctx, store.CreateCustomerParams{
			MasterEmail: nilIfEmpty(signal.Email),
			MasterPhone: nilIfEmpty(signal.Phone),
		}, pairs)
		if err == nil {
			p.logger.Info(observability.WithFields(ctx,
				observability.Field{Key: "customer_id", Value: customer.ID.String()},
			), "created customer from unresolved signal")
			return customer, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return store.Customer{}, err
		}
		// Lost the race; loop and re-read.
	}

	return store.Customer{}, ErrResolutionFailure
}

// lookup finds the first identifier that resolves, in priority order
func (p *IdentityProcessor) lookup(ctx context.Context, pairs []store.IdentifierPair) (store.Customer, bool, error) {
	for _, pair := range pairs {
		identifier, err := p.store.GetIdentifier(ctx, pair.Type, pair.Value)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return store.Customer{}, false, err
		}

		customer, err := p.store.GetCustomerByID(ctx, identifier.CustomerID)
		if err != nil {
			return store.Customer{}, false, err
		}
		return customer, true, nil
	}

	return store.Customer{}, false, nil
}

// bindRemaining attaches the signal's other identifiers to the resolved
// customer. An identifier already owned by a different customer is a
// conflict surfaced for manual reconciliation, never an automatic merge.
func (p *IdentityProcessor) bindRemaining(ctx context.Context, customer store.Customer, pairs []store.IdentifierPair) error {
	for _, pair := range pairs {
		existing, err := p.store.GetIdentifier(ctx, pair.Type, pair.Value)
		if err == nil {
			if existing.CustomerID != customer.ID {
				p.logger.Warn(observability.WithFields(ctx,
					observability.Field{Key: "customer_id", Value: customer.ID.String()},
					observability.Field{Key: "identifier_type", Value: pair.Type},
				), "identifier owned by a different customer")
				return ErrIdentityConflict
			}
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if _, err := p.store.AddIdentifier(ctx, customer.ID, pair.Type, pair.Value); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Inserted concurrently; re-read to check ownership.
				existing, readErr := p.store.GetIdentifier(ctx, pair.Type, pair.Value)
				if readErr != nil {
					return readErr
				}
				if existing.CustomerID != customer.ID {
					return ErrIdentityConflict
				}
				continue
			}
			return err
		}
	}

	return nil
}

// fillContact backfills master email/phone from the signal where missing
func (p *IdentityProcessor) fillContact(ctx context.Context, customer store.Customer, signal Signal) error {
	needsEmail := customer.MasterEmail == nil && signal.Email != ""
	needsPhone := customer.MasterPhone == nil && signal.Phone != ""
	if !needsEmail && !needsPhone {
		return nil
	}

	return p.store.FillCustomerContact(ctx, customer.ID, store.UpdateCustomerContactParams{
		MasterEmail: nilIfEmpty(signal.Email),
		MasterPhone: nilIfEmpty(signal.Phone),
	})
}

// Profile is the dashboard view of a customer: the aggregate record, every
// identifier it owns and its recent postback audit trail.
type Profile struct {
	Customer    store.Customer           `json:"customer"`
	Identifiers []store.Identifier       `json:"identifiers"`
	Postbacks   []store.OperatorPostback `json:"postbacks"`
}

// GetProfile assembles the profile view for one customer
func (p *IdentityProcessor) GetProfile(ctx context.Context, customerID uuid.UUID) (Profile, error) {
	customer, err := p.store.GetCustomerByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Profile{}, ErrCustomerNotFound
		}
		return Profile{}, err
	}

	identifiers, err := p.store.ListIdentifiersByCustomer(ctx, customerID)
	if err != nil {
		return Profile{}, err
	}

	postbacks, err := p.store.ListPostbacksByCustomer(ctx, customerID, 50)
	if err != nil {
		return Profile{}, err
	}

	return Profile{
		Customer:    customer,
		Identifiers: identifiers,
		Postbacks:   postbacks,
	}, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
