package engine

import (
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	r := NewStatusRegistry()

	s, err := r.Register("PENDING", KindStep, CategoryPending, "#FFA500")
	if err != nil {
		t.Fatalf("failed to register status: %v", err)
	}
	if s.ID == "" {
		t.Error("expected generated status ID")
	}
	if s.Position != 0 {
		t.Errorf("expected position 0, got %d", s.Position)
	}

	got, err := r.Resolve(s.ID)
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if got.Name != "PENDING" || got.Kind != KindStep || got.Category != CategoryPending {
		t.Errorf("unexpected status: %+v", got)
	}

	byName, err := r.ResolveByName("PENDING", KindStep)
	if err != nil {
		t.Fatalf("failed to resolve by name: %v", err)
	}
	if byName.ID != s.ID {
		t.Error("ResolveByName returned a different status")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewStatusRegistry()

	tests := []struct {
		name     string
		status   string
		kind     EntityKind
		category StatusCategory
	}{
		{"empty name", "", KindStep, CategoryPending},
		{"invalid kind", "PENDING", EntityKind("WIDGET"), CategoryPending},
		{"invalid category", "PENDING", KindStep, StatusCategory("MAYBE")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Register(tt.status, tt.kind, tt.category, ""); err == nil {
				t.Error("expected registration to fail")
			}
		})
	}
}

func TestRegisterDuplicateNameKind(t *testing.T) {
	r := NewStatusRegistry()

	if _, err := r.Register("PENDING", KindStep, CategoryPending, ""); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	_, err := r.Register("PENDING", KindStep, CategoryBlocked, "")
	if err == nil {
		t.Fatal("expected duplicate (name, kind) to be rejected")
	}
	if !IsConflict(err) {
		t.Errorf("expected conflict class, got %v", err)
	}
	if CodeOf(err) != ErrCodeDuplicateStatus {
		t.Errorf("expected DUPLICATE_STATUS, got %s", CodeOf(err))
	}

	// Same name under a different kind is a distinct status.
	if _, err := r.Register("PENDING", KindPhase, CategoryPending, ""); err != nil {
		t.Errorf("same name under different kind should register: %v", err)
	}
}

func TestInitialForIsFirstRegistered(t *testing.T) {
	r := NewStatusRegistry()

	first, err := r.Register("NOT_STARTED", KindStep, CategoryPending, "")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := r.Register("RUNNING", KindStep, CategoryInProgress, ""); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	initial, err := r.InitialFor(KindStep)
	if err != nil {
		t.Fatalf("failed to get initial status: %v", err)
	}
	if initial.ID != first.ID {
		t.Errorf("expected initial status %s, got %s", first.Name, initial.Name)
	}

	if _, err := r.InitialFor(KindPhase); err == nil {
		t.Error("expected error for kind with no statuses")
	}
}

func TestForCategory(t *testing.T) {
	r := NewStatusRegistry()

	if _, err := r.Register("PENDING", KindStep, CategoryPending, ""); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	done, err := r.Register("DONE", KindStep, CategoryCompleted, "")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	got, err := r.ForCategory(KindStep, CategoryCompleted)
	if err != nil {
		t.Fatalf("failed to resolve category: %v", err)
	}
	if got.ID != done.ID {
		t.Errorf("expected DONE, got %s", got.Name)
	}

	if _, err := r.ForCategory(KindStep, CategoryFailed); err == nil {
		t.Error("expected error for unmapped category")
	}
}

func TestRename(t *testing.T) {
	r := NewStatusRegistry()

	a, _ := r.Register("PENDING", KindStep, CategoryPending, "")
	b, _ := r.Register("RUNNING", KindStep, CategoryInProgress, "")

	if err := r.Rename(a.ID, "NOT_STARTED"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := r.ResolveByName("NOT_STARTED", KindStep); err != nil {
		t.Error("renamed status not resolvable by new name")
	}
	if _, err := r.ResolveByName("PENDING", KindStep); err == nil {
		t.Error("old name should no longer resolve")
	}

	// Renaming onto an existing (name, kind) is rejected.
	if err := r.Rename(b.ID, "NOT_STARTED"); CodeOf(err) != ErrCodeDuplicateStatus {
		t.Errorf("expected DUPLICATE_STATUS, got %v", err)
	}

	// Renaming to its own name is a no-op, not a conflict.
	if err := r.Rename(b.ID, "RUNNING"); err != nil {
		t.Errorf("self-rename should succeed: %v", err)
	}
}

func TestRemoveRefCounted(t *testing.T) {
	r := NewStatusRegistry()

	s, _ := r.Register("PENDING", KindStep, CategoryPending, "")

	r.addRef(s.ID)
	r.addRef(s.ID)
	if r.RefCount(s.ID) != 2 {
		t.Fatalf("expected refcount 2, got %d", r.RefCount(s.ID))
	}

	err := r.Remove(s.ID)
	if err == nil {
		t.Fatal("expected removal of referenced status to fail")
	}
	if CodeOf(err) != ErrCodeStatusInUse {
		t.Errorf("expected STATUS_IN_USE, got %s", CodeOf(err))
	}

	r.dropRef(s.ID)
	r.dropRef(s.ID)
	if err := r.Remove(s.ID); err != nil {
		t.Fatalf("unreferenced status should remove: %v", err)
	}
	if _, err := r.Resolve(s.ID); err == nil {
		t.Error("removed status should not resolve")
	}
}

func TestSeedDefaults(t *testing.T) {
	r := NewStatusRegistry()
	if err := r.SeedDefaults(); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	for _, kind := range EntityKinds() {
		statuses := r.ListForKind(kind)
		if len(statuses) != 6 {
			t.Errorf("expected 6 statuses for %s, got %d", kind, len(statuses))
		}
		initial, err := r.InitialFor(kind)
		if err != nil {
			t.Fatalf("no initial status for %s: %v", kind, err)
		}
		if initial.Category != CategoryPending {
			t.Errorf("initial status for %s should map to PENDING, got %s", kind, initial.Category)
		}
	}

	// Containers use planning-flavored names; graph nodes the canonical ones.
	if _, err := r.ResolveByName("PLANNING", KindMigration); err != nil {
		t.Error("expected PLANNING seeded for migrations")
	}
	if _, err := r.ResolveByName("PENDING", KindStep); err != nil {
		t.Error("expected PENDING seeded for steps")
	}
	if _, err := r.ResolveByName("ON_HOLD", KindIteration); err != nil {
		t.Error("expected ON_HOLD seeded for iterations")
	}

	// Seeding twice collides on (name, kind).
	if err := r.SeedDefaults(); err == nil {
		t.Error("expected second seeding to fail on duplicates")
	}
}

func TestCategoryTransitionTable(t *testing.T) {
	tests := []struct {
		from, to StatusCategory
		want     bool
	}{
		{CategoryPending, CategoryInProgress, true},
		{CategoryPending, CategoryCancelled, true},
		{CategoryPending, CategoryCompleted, false},
		{CategoryInProgress, CategoryCompleted, true},
		{CategoryInProgress, CategoryFailed, true},
		{CategoryInProgress, CategoryBlocked, true},
		{CategoryInProgress, CategoryCancelled, true},
		{CategoryFailed, CategoryInProgress, true},
		{CategoryFailed, CategoryCancelled, true},
		{CategoryFailed, CategoryCompleted, false},
		{CategoryBlocked, CategoryInProgress, true},
		{CategoryCompleted, CategoryCancelled, false},
		{CategoryCancelled, CategoryInProgress, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	if !CategoryCompleted.IsTerminal() || !CategoryCancelled.IsTerminal() {
		t.Error("COMPLETED and CANCELLED must be terminal")
	}
	if !CategoryFailed.IsRecoverable() || !CategoryBlocked.IsRecoverable() {
		t.Error("FAILED and BLOCKED must be recoverable")
	}
	if CategoryInProgress.IsTerminal() || CategoryPending.IsRecoverable() {
		t.Error("unexpected terminal/recoverable classification")
	}
}
