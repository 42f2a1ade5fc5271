package ownership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/carnival"
	"github.com/mastersleague/platform/pkg/common/kafka"
	"github.com/mastersleague/platform/pkg/common/logger"
	"github.com/mastersleague/platform/pkg/common/models"
	"github.com/mastersleague/platform/pkg/membership"
)

// CarnivalStore is the carnival repository surface the ownership service
// mutates through. Claim and Release are conditional writes; a false return
// means another caller won the race.
type CarnivalStore interface {
	Get(ctx context.Context, id uuid.UUID) (models.Carnival, error)
	Claim(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error)
	Release(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error)
	AssignOwner(ctx context.Context, id uuid.UUID, target *uuid.UUID, adminID uuid.UUID, now time.Time) (models.Carnival, error)
}

// MembershipReader resolves delegates and clubs. Read-only.
type MembershipReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	GetClub(ctx context.Context, id uuid.UUID) (models.Club, error)
}

// Service applies the rules under which a delegate may claim, release or be
// assigned an imported carnival.
type Service struct {
	store    CarnivalStore
	members  MembershipReader
	producer *kafka.Producer
	now      func() time.Time
}

func NewService(store CarnivalStore, members MembershipReader, producer *kafka.Producer, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, members: members, producer: producer, now: now}
}

func (s *Service) Claim(ctx context.Context, eventID, userID uuid.UUID) (models.ClaimResult, error) {
	if eventID == uuid.Nil || userID == uuid.Nil {
		return models.ClaimResult{}, badRequest("event id and user id are required")
	}

	event, err := s.claimableEvent(ctx, eventID)
	if err != nil {
		return models.ClaimResult{}, err
	}
	if event.OwnerUserID != nil {
		return models.ClaimResult{}, conflict("already claimed")
	}

	club, err := s.eligibleDelegate(ctx, userID)
	if err != nil {
		return models.ClaimResult{}, err
	}

	claimed, err := s.store.Claim(ctx, eventID, userID, s.now())
	if err != nil {
		return models.ClaimResult{}, fmt.Errorf("claiming carnival %s: %w", eventID, err)
	}
	if !claimed {
		return models.ClaimResult{}, conflict("already claimed")
	}

	updated, err := s.store.Get(ctx, eventID)
	if err != nil {
		return models.ClaimResult{}, fmt.Errorf("reloading carnival %s: %w", eventID, err)
	}

	s.publish(ctx, "carnival.claimed", updated, map[string]interface{}{
		"user_id": userID.String(),
		"club":    club.Name,
	})

	return models.ClaimResult{Carnival: updated, UserID: userID, ClubName: club.Name}, nil
}

func (s *Service) Release(ctx context.Context, eventID, userID uuid.UUID) (models.Carnival, error) {
	if eventID == uuid.Nil || userID == uuid.Nil {
		return models.Carnival{}, badRequest("event id and user id are required")
	}

	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return models.Carnival{}, err
	}
	if event.OwnerUserID == nil {
		return models.Carnival{}, conflict("not claimed")
	}
	if *event.OwnerUserID != userID {
		return models.Carnival{}, forbidden("only the current owner may release")
	}

	released, err := s.store.Release(ctx, eventID, userID, s.now())
	if err != nil {
		return models.Carnival{}, fmt.Errorf("releasing carnival %s: %w", eventID, err)
	}
	if !released {
		return models.Carnival{}, conflict("ownership changed concurrently")
	}

	updated, err := s.store.Get(ctx, eventID)
	if err != nil {
		return models.Carnival{}, fmt.Errorf("reloading carnival %s: %w", eventID, err)
	}

	s.publish(ctx, "carnival.released", updated, map[string]interface{}{
		"user_id": userID.String(),
	})

	return updated, nil
}

// AdminAssign sets or clears the owner regardless of the current holder.
// A nil target forcibly clears ownership. The target, when present, must be
// an active user but is not required to hold club membership.
func (s *Service) AdminAssign(ctx context.Context, eventID uuid.UUID, targetUserID *uuid.UUID, adminUserID uuid.UUID) (models.Carnival, error) {
	if eventID == uuid.Nil || adminUserID == uuid.Nil {
		return models.Carnival{}, badRequest("event id and admin user id are required")
	}

	admin, err := s.members.GetUser(ctx, adminUserID)
	if errors.Is(err, membership.ErrUserNotFound) {
		return models.Carnival{}, forbidden("administrative privilege required")
	}
	if err != nil {
		return models.Carnival{}, fmt.Errorf("loading admin %s: %w", adminUserID, err)
	}
	if !admin.IsActive || admin.Role != models.RoleAdmin {
		return models.Carnival{}, forbidden("administrative privilege required")
	}

	if _, err := s.claimableEvent(ctx, eventID); err != nil {
		return models.Carnival{}, err
	}

	if targetUserID != nil {
		target, err := s.members.GetUser(ctx, *targetUserID)
		if errors.Is(err, membership.ErrUserNotFound) {
			return models.Carnival{}, notFound("target user not found")
		}
		if err != nil {
			return models.Carnival{}, fmt.Errorf("loading target user %s: %w", *targetUserID, err)
		}
		if !target.IsActive {
			return models.Carnival{}, forbidden("target user is inactive")
		}
	}

	updated, err := s.store.AssignOwner(ctx, eventID, targetUserID, adminUserID, s.now())
	if err != nil {
		if errors.Is(err, carnival.ErrNotFound) {
			return models.Carnival{}, notFound("carnival not found")
		}
		return models.Carnival{}, fmt.Errorf("assigning owner for %s: %w", eventID, err)
	}

	data := map[string]interface{}{"admin_id": adminUserID.String()}
	if targetUserID != nil {
		data["target_id"] = targetUserID.String()
	}
	s.publish(ctx, "carnival.owner_assigned", updated, data)

	return updated, nil
}

// claimableEvent enforces the shared preconditions: the carnival exists, is
// active, came from an external source and has been synced at least once.
func (s *Service) claimableEvent(ctx context.Context, eventID uuid.UUID) (models.Carnival, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return models.Carnival{}, err
	}
	if _, external := models.IsExternalOrigin(event.SourceOrigin); !external {
		return models.Carnival{}, forbidden("manual events are not claimable")
	}
	if event.LastExternalSyncAt == nil {
		return models.Carnival{}, forbidden("not from external source")
	}
	return event, nil
}

func (s *Service) getEvent(ctx context.Context, eventID uuid.UUID) (models.Carnival, error) {
	event, err := s.store.Get(ctx, eventID)
	if errors.Is(err, carnival.ErrNotFound) {
		return models.Carnival{}, notFound("carnival not found")
	}
	if err != nil {
		return models.Carnival{}, fmt.Errorf("loading carnival %s: %w", eventID, err)
	}
	if !event.IsActive {
		return models.Carnival{}, gone("carnival is no longer active")
	}
	return event, nil
}

func (s *Service) eligibleDelegate(ctx context.Context, userID uuid.UUID) (models.Club, error) {
	user, err := s.members.GetUser(ctx, userID)
	if errors.Is(err, membership.ErrUserNotFound) {
		return models.Club{}, forbidden("user not eligible to claim")
	}
	if err != nil {
		return models.Club{}, fmt.Errorf("loading user %s: %w", userID, err)
	}
	if !user.IsActive || user.ClubID == nil {
		return models.Club{}, forbidden("user not eligible to claim")
	}

	club, err := s.members.GetClub(ctx, *user.ClubID)
	if errors.Is(err, membership.ErrClubNotFound) {
		return models.Club{}, forbidden("user not eligible to claim")
	}
	if err != nil {
		return models.Club{}, fmt.Errorf("loading club %s: %w", *user.ClubID, err)
	}
	if !club.IsActive {
		return models.Club{}, forbidden("user not eligible to claim")
	}
	return club, nil
}

func (s *Service) publish(ctx context.Context, eventType string, event models.Carnival, data map[string]interface{}) {
	if s.producer == nil {
		return
	}
	data["carnival_id"] = event.ID.String()
	if err := s.producer.PublishEvent(ctx, eventType, event.SourceOrigin, data); err != nil {
		logger.Log.WithError(err).Warn("failed to publish ownership event")
	}
}
