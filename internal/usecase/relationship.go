package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

// RelationshipService applies relationship transitions. Per-edge atomicity
// lives in the repository's conditional statements; this service only
// orders the rules and resolves targets.
type RelationshipService struct {
	accounts      port.AccountRepository
	relationships port.RelationshipRepository
	events        port.EventPublisher
	logger        *zap.Logger
}

// NewRelationshipService constructs a relationship service.
func NewRelationshipService(accounts port.AccountRepository, relationships port.RelationshipRepository, events port.EventPublisher, log *zap.Logger) *RelationshipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelationshipService{accounts: accounts, relationships: relationships, events: events, logger: log}
}

// UpdateResult reports a successful transition back to the caller, carrying
// enough to answer the actor and notify the target.
type UpdateResult struct {
	ActorID        int64
	Actor          domain.Account
	Target         domain.Account
	RequestedState domain.RelationshipState
	UpdatedAt      time.Time
}

// Update validates and applies one transition requested by actorID against
// the target. Rules run in a fixed order: block precedence first, then the
// per-state action.
func (s *RelationshipService) Update(ctx context.Context, actorID int64, target domain.TargetRef, requested domain.RelationshipState) (*UpdateResult, error) {
	if !requested.Valid() {
		return nil, ErrPayloadMissing
	}

	resolved, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if resolved.ID == actorID {
		return nil, ErrUserNotFound
	}

	// A block placed by the target wins over any requested state.
	if _, err := s.relationships.GetBlockedEdge(ctx, resolved.ID, actorID); err == nil {
		return nil, ErrUserIsBlocked
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check block precedence: %w", err)
	}

	switch requested {
	case domain.RelationshipPending:
		if err := s.relationships.UpsertPending(ctx, actorID, resolved.ID); err != nil {
			return nil, fmt.Errorf("request friendship: %w", err)
		}
	case domain.RelationshipFriend:
		if err := s.relationships.SetStateBetween(ctx, actorID, resolved.ID, domain.RelationshipFriend); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoDataEntries
			}
			return nil, fmt.Errorf("accept friendship: %w", err)
		}
	case domain.RelationshipNone:
		if err := s.relationships.DeleteBetween(ctx, actorID, resolved.ID); err != nil {
			return nil, fmt.Errorf("remove relationship: %w", err)
		}
	case domain.RelationshipBlocked:
		if err := s.relationships.ReplaceWithBlock(ctx, actorID, resolved.ID); err != nil {
			return nil, fmt.Errorf("block user: %w", err)
		}
	}

	now := time.Now().UTC()

	actor := domain.Account{ID: actorID}
	if loaded, err := s.accounts.GetByID(ctx, actorID); err == nil {
		actor = *loaded
	} else {
		s.logger.Warn("load actor profile failed", zap.Int64("actor_id", actorID), zap.Error(err))
	}

	if s.events != nil {
		event := domain.RelationshipUpdatedEvent{
			EventID:        uuid.NewString(),
			ActorID:        actorID,
			TargetID:       resolved.ID,
			RequestedState: string(requested),
			UpdatedAt:      now,
		}
		if err := s.events.PublishRelationshipUpdated(ctx, event); err != nil {
			s.logger.Warn("publish relationship updated event failed", zap.Error(err))
		}
	}

	return &UpdateResult{
		ActorID:        actorID,
		Actor:          actor,
		Target:         *resolved,
		RequestedState: requested,
		UpdatedAt:      now,
	}, nil
}

// ListForUser returns the relationships visible to the user with the other
// side's profile fields hydrated.
func (s *RelationshipService) ListForUser(ctx context.Context, userID int64) ([]domain.Relationship, error) {
	edges, err := s.relationships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list relationship edges: %w", err)
	}

	relationships := make([]domain.Relationship, 0, len(edges))
	for _, edge := range edges {
		if !visibleTo(edge.View(), userID) {
			continue
		}

		partnerID := edge.SenderID
		if partnerID == userID {
			partnerID = edge.ReceiverID
		}

		partner, err := s.accounts.GetByID(ctx, partnerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Account deleted under us; skip the dangling edge.
				continue
			}
			return nil, fmt.Errorf("hydrate relationship partner: %w", err)
		}

		relationships = append(relationships, domain.Relationship{
			UserID:         partner.ID,
			Username:       partner.Username,
			Discriminator:  partner.Discriminator,
			Biography:      partner.Biography,
			ProfilePicture: partner.ProfilePicture,
			State:          edge.State,
		})
	}

	return relationships, nil
}

// visibleTo decides whether a user sees an edge in their list. A pending
// request is visible to the receiver only, and a block is visible to the
// side that placed it; friends see each other.
func visibleTo(view domain.EdgeView, userID int64) bool {
	switch view.State {
	case domain.RelationshipPending:
		return view.DirectionOwner != userID
	case domain.RelationshipBlocked:
		return view.DirectionOwner == userID
	case domain.RelationshipFriend:
		return true
	default:
		return false
	}
}

func (s *RelationshipService) resolveTarget(ctx context.Context, target domain.TargetRef) (*domain.Account, error) {
	var (
		account *domain.Account
		err     error
	)
	switch {
	case target.ByID():
		account, err = s.accounts.GetByID(ctx, target.ID)
	case target.Username != "" && target.Discriminator != "":
		account, err = s.accounts.GetByHandle(ctx, target.Username, target.Discriminator)
	default:
		return nil, ErrPayloadMissing
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	return account, nil
}
