package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mastersleague/platform/pkg/carnival"
	"github.com/mastersleague/platform/pkg/common/models"
	"github.com/mastersleague/platform/pkg/membership"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCarnivalStore struct {
	carnivals map[uuid.UUID]*models.Carnival
	claims    int
}

func newFakeCarnivalStore() *fakeCarnivalStore {
	return &fakeCarnivalStore{carnivals: make(map[uuid.UUID]*models.Carnival)}
}

func (f *fakeCarnivalStore) Get(ctx context.Context, id uuid.UUID) (models.Carnival, error) {
	c, ok := f.carnivals[id]
	if !ok {
		return models.Carnival{}, carnival.ErrNotFound
	}
	return *c, nil
}

func (f *fakeCarnivalStore) Claim(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	c, ok := f.carnivals[id]
	if !ok {
		return false, carnival.ErrNotFound
	}
	if c.OwnerUserID != nil {
		return false, nil
	}
	f.claims++
	owner := userID
	c.OwnerUserID = &owner
	c.ClaimedAt = &now
	return true, nil
}

func (f *fakeCarnivalStore) Release(ctx context.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	c, ok := f.carnivals[id]
	if !ok {
		return false, carnival.ErrNotFound
	}
	if c.OwnerUserID == nil || *c.OwnerUserID != userID {
		return false, nil
	}
	c.OwnerUserID = nil
	c.ClaimedAt = nil
	return true, nil
}

func (f *fakeCarnivalStore) AssignOwner(ctx context.Context, id uuid.UUID, target *uuid.UUID, adminID uuid.UUID, now time.Time) (models.Carnival, error) {
	c, ok := f.carnivals[id]
	if !ok {
		return models.Carnival{}, carnival.ErrNotFound
	}
	if target == nil {
		c.OwnerUserID = nil
		c.ClaimedAt = nil
	} else {
		owner := *target
		c.OwnerUserID = &owner
		c.ClaimedAt = &now
	}
	return *c, nil
}

type fakeMembers struct {
	users map[uuid.UUID]models.User
	clubs map[uuid.UUID]models.Club
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{
		users: make(map[uuid.UUID]models.User),
		clubs: make(map[uuid.UUID]models.Club),
	}
}

func (f *fakeMembers) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, membership.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeMembers) GetClub(ctx context.Context, id uuid.UUID) (models.Club, error) {
	c, ok := f.clubs[id]
	if !ok {
		return models.Club{}, membership.ErrClubNotFound
	}
	return c, nil
}

type fixture struct {
	service *Service
	store   *fakeCarnivalStore
	members *fakeMembers
}

func newFixture() *fixture {
	store := newFakeCarnivalStore()
	members := newFakeMembers()
	service := NewService(store, members, nil, func() time.Time { return testNow })
	return &fixture{service: service, store: store, members: members}
}

func (f *fixture) addExternalCarnival(owner *uuid.UUID) uuid.UUID {
	id := uuid.New()
	synced := testNow.Add(-time.Hour)
	f.store.carnivals[id] = &models.Carnival{
		ID:                 id,
		Title:              "Brisbane Masters",
		SourceOrigin:       models.ExternalOrigin("mastersleague"),
		ExternalKey:        "e-" + id.String()[:8],
		OwnerUserID:        owner,
		IsActive:           true,
		LastExternalSyncAt: &synced,
	}
	return id
}

func (f *fixture) addDelegate() uuid.UUID {
	clubID := uuid.New()
	f.members.clubs[clubID] = models.Club{ID: clubID, Name: "Wests Panthers", State: "QLD", IsActive: true}
	userID := uuid.New()
	f.members.users[userID] = models.User{ID: userID, Role: "delegate", ClubID: &clubID, IsActive: true}
	return userID
}

func (f *fixture) addAdmin() uuid.UUID {
	id := uuid.New()
	f.members.users[id] = models.User{ID: id, Role: models.RoleAdmin, IsActive: true}
	return id
}

func assertRuleError(t *testing.T, err error, code string) {
	t.Helper()
	re, ok := AsRuleError(err)
	if !ok {
		t.Fatalf("expected a rule error, got %v", err)
	}
	if re.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, re.Code, re.Message)
	}
}

func TestClaimSucceeds(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	userID := f.addDelegate()

	result, err := f.service.Claim(context.Background(), eventID, userID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if result.UserID != userID || result.ClubName != "Wests Panthers" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Carnival.OwnerUserID == nil || *result.Carnival.OwnerUserID != userID {
		t.Fatal("owner not set on the returned carnival")
	}
	if result.Carnival.ClaimedAt == nil || !result.Carnival.ClaimedAt.Equal(testNow) {
		t.Fatal("claimedAt not stamped")
	}
}

func TestClaimUnknownCarnival(t *testing.T) {
	f := newFixture()
	userID := f.addDelegate()

	_, err := f.service.Claim(context.Background(), uuid.New(), userID)
	assertRuleError(t, err, CodeNotFound)
}

func TestClaimRetiredCarnival(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	f.store.carnivals[eventID].IsActive = false
	userID := f.addDelegate()

	_, err := f.service.Claim(context.Background(), eventID, userID)
	assertRuleError(t, err, CodeGone)
}

func TestClaimManualCarnival(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	f.store.carnivals[eventID].SourceOrigin = models.SourceManual
	f.store.carnivals[eventID].LastExternalSyncAt = nil
	userID := f.addDelegate()

	_, err := f.service.Claim(context.Background(), eventID, userID)
	assertRuleError(t, err, CodeForbidden)
}

func TestClaimNeverSyncedCarnival(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	f.store.carnivals[eventID].LastExternalSyncAt = nil
	userID := f.addDelegate()

	_, err := f.service.Claim(context.Background(), eventID, userID)
	assertRuleError(t, err, CodeForbidden)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	f := newFixture()
	first := f.addDelegate()
	eventID := f.addExternalCarnival(&first)
	second := f.addDelegate()

	_, err := f.service.Claim(context.Background(), eventID, second)
	assertRuleError(t, err, CodeConflict)
}

func TestClaimIneligibleUsers(t *testing.T) {
	f := newFixture()

	inactive := f.addDelegate()
	user := f.members.users[inactive]
	user.IsActive = false
	f.members.users[inactive] = user

	clubless := uuid.New()
	f.members.users[clubless] = models.User{ID: clubless, Role: "delegate", IsActive: true}

	deadClub := f.addDelegate()
	club := f.members.clubs[*f.members.users[deadClub].ClubID]
	club.IsActive = false
	f.members.clubs[club.ID] = club

	tests := []struct {
		name   string
		userID uuid.UUID
	}{
		{name: "unknown user", userID: uuid.New()},
		{name: "inactive user", userID: inactive},
		{name: "no club membership", userID: clubless},
		{name: "inactive club", userID: deadClub},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventID := f.addExternalCarnival(nil)
			_, err := f.service.Claim(context.Background(), eventID, tt.userID)
			assertRuleError(t, err, CodeForbidden)
			if f.store.carnivals[eventID].OwnerUserID != nil {
				t.Fatal("a rejected claim must not set an owner")
			}
		})
	}
}

func TestClaimRaceLoserGetsConflict(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	winner := f.addDelegate()
	loser := f.addDelegate()

	if _, err := f.service.Claim(context.Background(), eventID, winner); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	_, err := f.service.Claim(context.Background(), eventID, loser)
	assertRuleError(t, err, CodeConflict)

	if f.store.claims != 1 {
		t.Fatalf("expected exactly one successful conditional claim, got %d", f.store.claims)
	}
	if *f.store.carnivals[eventID].OwnerUserID != winner {
		t.Fatal("ownership moved off the winner")
	}
}

func TestReleaseSucceeds(t *testing.T) {
	f := newFixture()
	owner := f.addDelegate()
	eventID := f.addExternalCarnival(&owner)

	updated, err := f.service.Release(context.Background(), eventID, owner)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if updated.OwnerUserID != nil || updated.ClaimedAt != nil {
		t.Fatalf("ownership not cleared: %+v", updated)
	}
}

func TestReleaseUnclaimed(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	userID := f.addDelegate()

	_, err := f.service.Release(context.Background(), eventID, userID)
	assertRuleError(t, err, CodeConflict)
}

func TestReleaseByNonOwner(t *testing.T) {
	f := newFixture()
	owner := f.addDelegate()
	eventID := f.addExternalCarnival(&owner)
	other := f.addDelegate()

	_, err := f.service.Release(context.Background(), eventID, other)
	assertRuleError(t, err, CodeForbidden)
}

func TestAdminAssignSetsOwner(t *testing.T) {
	f := newFixture()
	current := f.addDelegate()
	eventID := f.addExternalCarnival(&current)
	adminID := f.addAdmin()
	target := f.addDelegate()

	updated, err := f.service.AdminAssign(context.Background(), eventID, &target, adminID)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if updated.OwnerUserID == nil || *updated.OwnerUserID != target {
		t.Fatalf("owner not reassigned: %+v", updated)
	}
}

func TestAdminAssignNilTargetClearsOwner(t *testing.T) {
	f := newFixture()
	current := f.addDelegate()
	eventID := f.addExternalCarnival(&current)
	adminID := f.addAdmin()

	updated, err := f.service.AdminAssign(context.Background(), eventID, nil, adminID)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if updated.OwnerUserID != nil {
		t.Fatal("owner not cleared")
	}
}

func TestAdminAssignTargetWithoutClub(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	adminID := f.addAdmin()
	target := uuid.New()
	f.members.users[target] = models.User{ID: target, Role: "delegate", IsActive: true}

	if _, err := f.service.AdminAssign(context.Background(), eventID, &target, adminID); err != nil {
		t.Fatalf("assignment must not require club membership: %v", err)
	}
}

func TestAdminAssignRequiresAdminRole(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	target := f.addDelegate()

	tests := []struct {
		name    string
		adminID uuid.UUID
	}{
		{name: "unknown admin", adminID: uuid.New()},
		{name: "plain delegate", adminID: target},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.AdminAssign(context.Background(), eventID, &target, tt.adminID)
			assertRuleError(t, err, CodeForbidden)
		})
	}
}

func TestAdminAssignUnknownTarget(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	adminID := f.addAdmin()
	target := uuid.New()

	_, err := f.service.AdminAssign(context.Background(), eventID, &target, adminID)
	assertRuleError(t, err, CodeNotFound)
}

func TestAdminAssignManualCarnival(t *testing.T) {
	f := newFixture()
	eventID := f.addExternalCarnival(nil)
	f.store.carnivals[eventID].SourceOrigin = models.SourceManual
	adminID := f.addAdmin()
	target := f.addDelegate()

	_, err := f.service.AdminAssign(context.Background(), eventID, &target, adminID)
	assertRuleError(t, err, CodeForbidden)
}
