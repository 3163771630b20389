package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

func TestAuditService_ExportSignsSequence(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "aud-1", "aud@x.com", domain.RoleAuditor)
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := f.keys.Issue(ctx, IssueKeyInput{CallerID: "dev-1", Name: name}); err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
	}

	export, err := f.audit.ExportAuditLog(ctx, "aud-1", nil)
	if err != nil {
		t.Fatalf("ExportAuditLog returned error: %v", err)
	}
	if len(export.Entries) != 3 || export.CorruptedCount != 0 {
		t.Fatalf("unexpected export: %d entries, %d corrupted", len(export.Entries), export.CorruptedCount)
	}
	if export.Entries[0].Details.(domain.KeyIssuedDetails).KeyName != "a" {
		t.Fatalf("export must be oldest first")
	}
	if !f.audit.VerifyExport(*export) {
		t.Fatalf("a fresh export must verify")
	}

	exports := f.store.entriesFor(domain.ActionLogsExported)
	if len(exports) != 1 || exports[0].Details.(domain.LogsExportedDetails).EntryCount != 3 {
		t.Fatalf("expected LOGS_EXPORTED with 3 entries, got %+v", exports)
	}

	tampered := *export
	tampered.Entries = append([]domain.AuditEntry(nil), export.Entries[:2]...)
	if f.audit.VerifyExport(tampered) {
		t.Fatalf("a truncated export must not verify")
	}
}

func TestAuditService_ExportReportsCorruption(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "admin-1", "root@x.com", domain.RoleAdmin)

	if _, err := f.keys.Issue(ctx, IssueKeyInput{CallerID: "admin-1", Name: "ci"}); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	f.store.mu.Lock()
	f.store.audit[0].ActorDisplay = "mallory"
	f.store.mu.Unlock()

	export, err := f.audit.ExportAuditLog(ctx, "admin-1", nil)
	if err != nil {
		t.Fatalf("ExportAuditLog returned error: %v", err)
	}
	if export.CorruptedCount != 1 {
		t.Fatalf("expected 1 corrupted entry, got %d", export.CorruptedCount)
	}
	if f.audit.VerifyExport(*export) {
		t.Fatalf("an export with corrupted entries must not verify")
	}
}

func TestAuditService_ExportForbiddenForNewbie(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.seedIdentity(t, "new-1", "new@x.com", domain.RoleNewbie)

	if _, err := f.audit.ExportAuditLog(context.Background(), "new-1", nil); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	denied := f.store.entriesFor(domain.ActionAccessDenied)
	if len(denied) != 1 || *denied[0].ActorID != "new-1" {
		t.Fatalf("expected ACCESS_DENIED attributed to the caller, got %+v", denied)
	}
}

func TestAuditService_MyAuditLog(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)
	f.seedIdentity(t, "dev-2", "other@x.com", domain.RoleDeveloper)

	for _, name := range []string{"first", "second"} {
		if _, err := f.keys.Issue(ctx, IssueKeyInput{CallerID: "dev-1", Name: name}); err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
	}
	if _, err := f.keys.Issue(ctx, IssueKeyInput{CallerID: "dev-2", Name: "theirs"}); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	entries, err := f.audit.MyAuditLog(ctx, "dev-1", 0)
	if err != nil {
		t.Fatalf("MyAuditLog returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected only the caller's entries, got %d", len(entries))
	}
	if entries[0].Details.(domain.KeyIssuedDetails).KeyName != "second" {
		t.Fatalf("expected newest first")
	}

	limited, err := f.audit.MyAuditLog(ctx, "dev-1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d (%v)", len(limited), err)
	}

	f.audit.WithLimits(1, 1)
	capped, err := f.audit.MyAuditLog(ctx, "dev-1", 100)
	if err != nil || len(capped) != 1 {
		t.Fatalf("expected max limit to cap the request, got %d (%v)", len(capped), err)
	}
	defaulted, err := f.audit.MyAuditLog(ctx, "dev-1", 0)
	if err != nil || len(defaulted) != 1 {
		t.Fatalf("expected default limit to apply, got %d (%v)", len(defaulted), err)
	}
}
