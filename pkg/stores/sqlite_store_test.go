package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openhoist/openhoist/pkg/assets"
	"github.com/openhoist/openhoist/pkg/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newDeployment(stack string, mode engine.Mode) *Deployment {
	return &Deployment{
		ID:        uuid.New().String(),
		Stack:     stack,
		Mode:      mode,
		Status:    DeploymentStatusRunning,
		StartedAt: time.Now(),
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := newDeployment("prod", engine.ModeApply)
	if err := store.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}

	got, err := store.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if got.Stack != "prod" || got.Mode != engine.ModeApply {
		t.Errorf("got stack=%q mode=%q", got.Stack, got.Mode)
	}
	if got.Status != DeploymentStatusRunning {
		t.Errorf("expected running, got %q", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("expected nil CompletedAt for a running deployment")
	}

	if err := store.CompleteDeployment(ctx, d.ID, DeploymentStatusSucceeded, nil); err != nil {
		t.Fatalf("CompleteDeployment: %v", err)
	}
	got, err = store.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment after complete: %v", err)
	}
	if got.Status != DeploymentStatusSucceeded {
		t.Errorf("expected succeeded, got %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestCompleteDeploymentRecordsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := newDeployment("prod", engine.ModeApply)
	if err := store.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}

	msg := "sql server declaration failed"
	if err := store.CompleteDeployment(ctx, d.ID, DeploymentStatusFailed, &msg); err != nil {
		t.Fatalf("CompleteDeployment: %v", err)
	}

	got, err := store.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("expected error %q, got %v", msg, got.Error)
	}
}

func TestCompleteDeploymentNotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.CompleteDeployment(context.Background(), "nope", DeploymentStatusSucceeded, nil); err == nil {
		t.Fatal("expected error for unknown deployment")
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetDeployment(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown deployment")
	}
}

func TestListDeploymentsFiltersByStack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := newDeployment("prod", engine.ModePreview)
		d.StartedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment: %v", err)
		}
	}
	other := newDeployment("staging", engine.ModePreview)
	if err := store.CreateDeployment(ctx, other); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}

	list, err := store.ListDeployments(ctx, "prod", 10)
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 deployments, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].StartedAt.After(list[i-1].StartedAt) {
			t.Error("expected newest-first ordering")
		}
	}

	limited, err := store.ListDeployments(ctx, "prod", 2)
	if err != nil {
		t.Fatalf("ListDeployments with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 deployments, got %d", len(limited))
	}
}

func TestLatestExportsReturnsNewestSuccessfulApply(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := newDeployment("prod", engine.ModeApply)
	old.StartedAt = time.Now().Add(-time.Hour)
	if err := store.CreateDeployment(ctx, old); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	if err := store.CompleteDeployment(ctx, old.ID, DeploymentStatusSucceeded, nil); err != nil {
		t.Fatalf("CompleteDeployment: %v", err)
	}
	if err := store.SaveExports(ctx, old.ID, []engine.Export{{Name: "endpoint", Value: "https://old.example.com"}}); err != nil {
		t.Fatalf("SaveExports: %v", err)
	}

	latest := newDeployment("prod", engine.ModeApply)
	if err := store.CreateDeployment(ctx, latest); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	if err := store.CompleteDeployment(ctx, latest.ID, DeploymentStatusSucceeded, nil); err != nil {
		t.Fatalf("CompleteDeployment: %v", err)
	}
	exports := []engine.Export{
		{Name: "endpoint", Value: "https://new.example.com"},
		{Name: "connection", Value: "Server=db;Database=app"},
	}
	if err := store.SaveExports(ctx, latest.ID, exports); err != nil {
		t.Fatalf("SaveExports: %v", err)
	}

	// A newer failed apply must not shadow the successful one.
	failed := newDeployment("prod", engine.ModeApply)
	failed.StartedAt = time.Now().Add(time.Minute)
	if err := store.CreateDeployment(ctx, failed); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	msg := "boom"
	if err := store.CompleteDeployment(ctx, failed.ID, DeploymentStatusFailed, &msg); err != nil {
		t.Fatalf("CompleteDeployment: %v", err)
	}

	got, err := store.LatestExports(ctx, "prod")
	if err != nil {
		t.Fatalf("LatestExports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(got))
	}
	// Sorted by name: connection before endpoint.
	if got[0].Name != "connection" || got[1].Value != "https://new.example.com" {
		t.Errorf("unexpected exports: %+v", got)
	}
}

func TestLatestExportsEmptyWhenNoApply(t *testing.T) {
	store := newTestStore(t)
	got, err := store.LatestExports(context.Background(), "prod")
	if err != nil {
		t.Fatalf("LatestExports: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no exports, got %d", len(got))
	}
}

func TestRecordPublishedObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := newDeployment("prod", engine.ModeApply)
	if err := store.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}

	objects := []assets.PublishedObject{
		{Name: "index.html", ContentType: "text/html", Size: 120, SignedURL: "https://cdn/index.html?sig=x", ExpiresAt: time.Now().Add(2 * time.Hour)},
		{Name: "static/main.js", ContentType: "text/javascript", Size: 4096},
	}
	if err := store.RecordPublishedObjects(ctx, d.ID, objects); err != nil {
		t.Fatalf("RecordPublishedObjects: %v", err)
	}
}

func TestRuleStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AppliedRuleIDs(ctx, "sql-main")
	if err != nil {
		t.Fatalf("AppliedRuleIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no rules initially, got %d", len(ids))
	}

	rules := []engine.AddressRule{
		{ID: "allow-1-2-3-4", Scope: "sql-main", StartAddress: "1.2.3.4", EndAddress: "1.2.3.4"},
		{ID: "allow-5-6-7-8", Scope: "sql-main", StartAddress: "5.6.7.8", EndAddress: "5.6.7.8"},
	}
	if err := store.RecordRules(ctx, "sql-main", rules); err != nil {
		t.Fatalf("RecordRules: %v", err)
	}

	ids, err = store.AppliedRuleIDs(ctx, "sql-main")
	if err != nil {
		t.Fatalf("AppliedRuleIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "allow-1-2-3-4" || ids[1] != "allow-5-6-7-8" {
		t.Fatalf("unexpected rule ids: %v", ids)
	}

	// Recording a new set replaces the old one.
	replacement := []engine.AddressRule{
		{ID: "allow-9-9-9-9", Scope: "sql-main", StartAddress: "9.9.9.9", EndAddress: "9.9.9.9"},
	}
	if err := store.RecordRules(ctx, "sql-main", replacement); err != nil {
		t.Fatalf("RecordRules replace: %v", err)
	}
	ids, err = store.AppliedRuleIDs(ctx, "sql-main")
	if err != nil {
		t.Fatalf("AppliedRuleIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "allow-9-9-9-9" {
		t.Fatalf("unexpected rule ids after replace: %v", ids)
	}

	// Scopes are isolated.
	other, err := store.AppliedRuleIDs(ctx, "sql-other")
	if err != nil {
		t.Fatalf("AppliedRuleIDs other scope: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no rules in other scope, got %d", len(other))
	}
}
