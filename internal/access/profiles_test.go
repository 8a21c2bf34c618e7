package access

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func strPtr(s string) *string { return &s }

func baseProfile() *Profile {
	return &Profile{
		ID:     1,
		Email:  "target@takenap.io",
		Status: "pending",
		Role:   "user",
		Plan:   "free",
		Tags:   []string{},
	}
}

func superadminActor() Actor {
	return Actor{UserID: "actor-1", Email: "root@takenap.io", Role: "superadmin"}
}

// ---------------------------------------------------------------------------
// Role change rules
// ---------------------------------------------------------------------------

func TestPlanProfileChanges_RoleChangeRequiresSuperadmin(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{Role: strPtr("admin")}

	for _, role := range []string{"user", "admin"} {
		actor := Actor{UserID: "a", Email: "a@b.com", Role: role}
		_, err := planProfileChanges(actor, current, input, 2)
		if err == nil {
			t.Errorf("actor role %q: expected rejection of role change", role)
		}
	}
}

func TestPlanProfileChanges_SuperadminCanChangeRole(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{Role: strPtr("admin")}

	changes, err := planProfileChanges(superadminActor(), current, input, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].field != "role" || changes[0].from != "user" || changes[0].to != "admin" {
		t.Errorf("unexpected change: %+v", changes[0])
	}
}

func TestPlanProfileChanges_RejectsDemotingLastSuperadmin(t *testing.T) {
	current := baseProfile()
	current.Role = "superadmin"
	input := UpdateProfileInput{Role: strPtr("user")}

	_, err := planProfileChanges(superadminActor(), current, input, 1)
	if err == nil {
		t.Fatal("expected rejection: sole superadmin cannot be demoted")
	}
	if !strings.Contains(err.Error(), "last remaining superadmin") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPlanProfileChanges_DemotionAllowedWithTwoSuperadmins(t *testing.T) {
	current := baseProfile()
	current.Role = "superadmin"
	input := UpdateProfileInput{Role: strPtr("user")}

	changes, err := planProfileChanges(superadminActor(), current, input, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected exactly 1 role change, got %d", len(changes))
	}
	if changes[0].field != "role" {
		t.Errorf("expected a role change, got %+v", changes[0])
	}
}

func TestPlanProfileChanges_PromotionNeverHitsSuperadminGuard(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{Role: strPtr("superadmin")}

	// Count of 1 must not matter when promoting
	changes, err := planProfileChanges(superadminActor(), current, input, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
}

func TestPlanProfileChanges_InvalidRole(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{Role: strPtr("owner")}

	_, err := planProfileChanges(superadminActor(), current, input, 2)
	if err == nil {
		t.Fatal("expected rejection of unknown role")
	}
}

// ---------------------------------------------------------------------------
// Status / plan / tags / notes changes
// ---------------------------------------------------------------------------

func TestPlanProfileChanges_InvalidStatus(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{Status: strPtr("suspended")}

	_, err := planProfileChanges(superadminActor(), current, input, 2)
	if err == nil {
		t.Fatal("expected rejection of unknown status")
	}
}

func TestPlanProfileChanges_StatusChangeDoesNotNeedSuperadmin(t *testing.T) {
	current := baseProfile()
	actor := Actor{UserID: "a", Email: "a@b.com", Role: "admin"}
	input := UpdateProfileInput{Status: strPtr("approved")}

	changes, err := planProfileChanges(actor, current, input, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 || changes[0].field != "status" {
		t.Fatalf("expected a single status change, got %+v", changes)
	}
}

func TestPlanProfileChanges_NoopInputYieldsNoChanges(t *testing.T) {
	current := baseProfile()
	input := UpdateProfileInput{
		Status: strPtr("pending"),
		Role:   strPtr("user"),
		Plan:   strPtr("free"),
	}

	changes, err := planProfileChanges(superadminActor(), current, input, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no changes for no-op input, got %+v", changes)
	}
}

func TestPlanProfileChanges_EachFieldYieldsOneChange(t *testing.T) {
	current := baseProfile()
	tags := []string{"beta", "vip"}
	input := UpdateProfileInput{
		Status: strPtr("approved"),
		Role:   strPtr("admin"),
		Plan:   strPtr("pro"),
		Tags:   &tags,
		Notes:  strPtr("trusted tester"),
	}

	changes, err := planProfileChanges(superadminActor(), current, input, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 5 {
		t.Fatalf("expected 5 independent changes, got %d: %+v", len(changes), changes)
	}

	seen := map[string]bool{}
	for _, c := range changes {
		seen[c.field] = true
	}
	for _, field := range []string{"status", "role", "plan", "tags", "notes"} {
		if !seen[field] {
			t.Errorf("missing change for field %q", field)
		}
	}
}

func TestPlanProfileChanges_TagsComparedByValue(t *testing.T) {
	current := baseProfile()
	current.Tags = []string{"beta", "vip"}
	same := []string{"beta", "vip"}
	input := UpdateProfileInput{Tags: &same}

	changes, err := planProfileChanges(superadminActor(), current, input, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected identical tags to produce no change, got %+v", changes)
	}
}
