package services

import (
	"context"
	"errors"
	"testing"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/contest"
	"fitFeudAPI/internal/types/competition"
)

func newCompetitionFixture(t *testing.T) (*CompetitionService, context.Context) {
	db := setupTestDB(t)
	groups := NewGroupService(db)
	svc := NewCompetitionService(db, groups, newTestBus(t))
	return svc, context.Background()
}

func TestChallengeLifecycle(t *testing.T) {
	svc, ctx := newCompetitionFixture(t)
	db := svc.db

	ownerID, ownerClerk := createTestUser(t, db, "comp_owner1")
	owner2ID, owner2Clerk := createTestUser(t, db, "comp_owner2")
	memberID, memberClerk := createTestUser(t, db, "comp_member")

	group1 := createTestGroup(t, db, "comp_g1")
	group2 := createTestGroup(t, db, "comp_g2")
	addGroupMember(t, db, group1, ownerID, "owner")
	addGroupMember(t, db, group1, memberID, "member")
	addGroupMember(t, db, group2, owner2ID, "owner")

	// Plain members cannot challenge on the group's behalf.
	if _, err := svc.CreateChallenge(ctx, memberClerk, group1, group2); err == nil {
		t.Error("Expected member challenge to be rejected")
	} else {
		var authzErr *apperr.AuthorizationError
		if !errors.As(err, &authzErr) {
			t.Errorf("Expected AuthorizationError, got %v", err)
		}
	}

	// A group cannot challenge itself.
	if _, err := svc.CreateChallenge(ctx, ownerClerk, group1, group1); err == nil {
		t.Error("Expected self challenge to be rejected")
	}

	comp, err := svc.CreateChallenge(ctx, ownerClerk, group1, group2)
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}
	if comp.Status != contest.StatusPending {
		t.Errorf("Expected pending status, got %s", comp.Status)
	}
	if comp.Type != competition.TypeChallenge {
		t.Errorf("Expected challenge type, got %s", comp.Type)
	}

	// The same pair cannot hold two open competitions.
	if _, err := svc.CreateChallenge(ctx, owner2Clerk, group2, group1); err == nil {
		t.Error("Expected duplicate open competition to be rejected")
	}

	// Only staff of the challenged group may accept.
	if _, err := svc.AcceptCompetition(ctx, comp.ID, ownerClerk); err == nil {
		t.Error("Expected challenger-side accept to be rejected")
	}

	accepted, err := svc.AcceptCompetition(ctx, comp.ID, owner2Clerk)
	if err != nil {
		t.Fatalf("AcceptCompetition failed: %v", err)
	}
	if accepted.Status != contest.StatusActive {
		t.Errorf("Expected active status, got %s", accepted.Status)
	}
	if accepted.StartedAt == nil || accepted.EndsAt == nil {
		t.Fatal("Active competition must carry a window")
	}
}

func TestContributionsReconcileWithGroupScore(t *testing.T) {
	svc, ctx := newCompetitionFixture(t)
	db := svc.db

	ownerID, ownerClerk := createTestUser(t, db, "contrib_owner1")
	owner2ID, owner2Clerk := createTestUser(t, db, "contrib_owner2")
	memberID, _ := createTestUser(t, db, "contrib_member")

	group1 := createTestGroup(t, db, "contrib_g1")
	group2 := createTestGroup(t, db, "contrib_g2")
	addGroupMember(t, db, group1, ownerID, "owner")
	addGroupMember(t, db, group1, memberID, "member")
	addGroupMember(t, db, group2, owner2ID, "owner")

	comp, err := svc.CreateChallenge(ctx, ownerClerk, group1, group2)
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	// Contributions against a pending competition are rejected.
	if err := svc.RecordContribution(ctx, comp.ID, group1, ownerID, 3); err == nil {
		t.Error("Expected contribution to pending competition to fail")
	} else {
		var stateErr *apperr.InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Errorf("Expected InvalidStateError, got %v", err)
		}
	}

	if _, err := svc.AcceptCompetition(ctx, comp.ID, owner2Clerk); err != nil {
		t.Fatalf("AcceptCompetition failed: %v", err)
	}

	if err := svc.RecordContribution(ctx, comp.ID, group1, ownerID, 3); err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}
	if err := svc.RecordContribution(ctx, comp.ID, group1, ownerID, 3); err != nil {
		t.Fatalf("Second RecordContribution failed: %v", err)
	}
	if err := svc.RecordContribution(ctx, comp.ID, group1, memberID, 5); err != nil {
		t.Fatalf("Member RecordContribution failed: %v", err)
	}
	if err := svc.RecordContribution(ctx, comp.ID, group2, owner2ID, 4); err != nil {
		t.Fatalf("Group2 RecordContribution failed: %v", err)
	}

	detail, err := svc.GetCompetition(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetCompetition failed: %v", err)
	}
	if detail.Competition.Group1Score != 11 {
		t.Errorf("Expected group1 score 11, got %d", detail.Competition.Group1Score)
	}
	if detail.Competition.Group2Score != 4 {
		t.Errorf("Expected group2 score 4, got %d", detail.Competition.Group2Score)
	}

	// Group score equals the sum of its member contributions.
	var sum int64
	for _, standing := range detail.Group1Board {
		sum += standing.Points
	}
	if sum != detail.Competition.Group1Score {
		t.Errorf("Group1 score %d does not match contribution sum %d", detail.Competition.Group1Score, sum)
	}

	// The member board ranks by points, contributors first.
	if len(detail.Group1Board) != 2 {
		t.Fatalf("Expected 2 standings for group1, got %d", len(detail.Group1Board))
	}
	if detail.Group1Board[0].UserID != ownerID || detail.Group1Board[0].Rank != 1 {
		t.Errorf("Expected owner ranked first, got %+v", detail.Group1Board[0])
	}

	if err := svc.RecordContribution(ctx, comp.ID, group1, ownerID, 0); err == nil {
		t.Error("Expected zero delta to be rejected")
	}
}

func TestFinalizeExpiredCompetition(t *testing.T) {
	svc, ctx := newCompetitionFixture(t)
	db := svc.db

	ownerID, ownerClerk := createTestUser(t, db, "fin_owner1")
	owner2ID, owner2Clerk := createTestUser(t, db, "fin_owner2")

	group1 := createTestGroup(t, db, "fin_g1")
	group2 := createTestGroup(t, db, "fin_g2")
	addGroupMember(t, db, group1, ownerID, "owner")
	addGroupMember(t, db, group2, owner2ID, "owner")

	comp, err := svc.CreateChallenge(ctx, ownerClerk, group1, group2)
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}
	if _, err := svc.AcceptCompetition(ctx, comp.ID, owner2Clerk); err != nil {
		t.Fatalf("AcceptCompetition failed: %v", err)
	}

	if err := svc.RecordContribution(ctx, comp.ID, group2, owner2ID, 9); err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	forceExpired(t, db, "competitions", comp.ID)

	final, finalized, err := svc.FinalizeIfExpired(ctx, comp.ID)
	if err != nil {
		t.Fatalf("FinalizeIfExpired failed: %v", err)
	}
	if !finalized {
		t.Fatal("Expected this call to perform the finalization")
	}
	if final.Status != contest.StatusCompleted {
		t.Errorf("Expected completed status, got %s", final.Status)
	}
	if final.WinnerGroupID == nil || *final.WinnerGroupID != group2 {
		t.Errorf("Expected group2 %s to win, got %v", group2, final.WinnerGroupID)
	}

	// A settled competition rejects late contributions.
	if err := svc.RecordContribution(ctx, comp.ID, group2, owner2ID, 1); err == nil {
		t.Error("Expected contribution after completion to fail")
	}
}

func TestCancelCompetitionByEitherStaff(t *testing.T) {
	svc, ctx := newCompetitionFixture(t)
	db := svc.db

	ownerID, ownerClerk := createTestUser(t, db, "cancel_owner1")
	owner2ID, owner2Clerk := createTestUser(t, db, "cancel_owner2")

	group1 := createTestGroup(t, db, "cancel_g1")
	group2 := createTestGroup(t, db, "cancel_g2")
	addGroupMember(t, db, group1, ownerID, "owner")
	addGroupMember(t, db, group2, owner2ID, "owner")

	comp, err := svc.CreateChallenge(ctx, ownerClerk, group1, group2)
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	// Challenged side may cancel a pending competition too.
	cancelled, err := svc.CancelCompetition(ctx, comp.ID, owner2Clerk)
	if err != nil {
		t.Fatalf("CancelCompetition failed: %v", err)
	}
	if cancelled.Status != contest.StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", cancelled.Status)
	}

	// Once cancelled the pair can compete again.
	if _, err := svc.CreateChallenge(ctx, ownerClerk, group1, group2); err != nil {
		t.Fatalf("CreateChallenge after cancel failed: %v", err)
	}
}
