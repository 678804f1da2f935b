package resolver

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	errs "marzban-vpn-bot/internal/errors"
	"marzban-vpn-bot/internal/kvstore"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/pkg/marzban"
)

// fakePanel implements Panel against an in-memory account set
type fakePanel struct {
	existing    map[string]bool
	searchHits  map[string][]marzban.User
	existsErr   error
	createErr   error
	existsCalls []string
	createCalls []marzban.User
	searchCalls []string
}

func (p *fakePanel) UserExists(_ context.Context, username string) (bool, error) {
	p.existsCalls = append(p.existsCalls, username)
	if p.existsErr != nil {
		return false, p.existsErr
	}
	return p.existing[username], nil
}

func (p *fakePanel) CreateUser(_ context.Context, user marzban.User) (*marzban.User, error) {
	p.createCalls = append(p.createCalls, user)
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.existing[user.Username] = true
	return &user, nil
}

func (p *fakePanel) SearchUsers(_ context.Context, query string, _, _ int) (*marzban.UsersPage, error) {
	p.searchCalls = append(p.searchCalls, query)
	hits := p.searchHits[query]
	return &marzban.UsersPage{Users: hits, Total: len(hits)}, nil
}

func newTestResolver(t *testing.T, panel *fakePanel, autoProvision bool) (*Service, *storage.Service) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := kvstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	storageService := storage.NewService(store, logger)

	cfg := config.PanelConfig{
		InboundTag:    "VLESS TCP",
		AutoProvision: autoProvision,
	}
	return NewService(panel, storageService, cfg, logger), storageService
}

func TestResolveFallbackOrder(t *testing.T) {
	// Canonical account missing, legacy account present: resolution must
	// probe canonical first, land on legacy, and cache the result.
	panel := &fakePanel{existing: map[string]bool{"user100": true}}
	svc, store := newTestResolver(t, panel, true)

	username, err := svc.Resolve(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if username != "user100" {
		t.Errorf("expected legacy username, got %q", username)
	}

	want := []string{"tg_100", "user100"}
	if len(panel.existsCalls) != len(want) {
		t.Fatalf("expected %d existence checks, got %v", len(want), panel.existsCalls)
	}
	for i, call := range want {
		if panel.existsCalls[i] != call {
			t.Errorf("check %d: got %q, want %q", i, panel.existsCalls[i], call)
		}
	}

	if cached, ok := store.CachedUsername(100); !ok || cached != "user100" {
		t.Errorf("mapping not cached: %q ok=%v", cached, ok)
	}
}

func TestResolveCachedMappingShortCircuits(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{"custom_name": true}}
	svc, store := newTestResolver(t, panel, true)

	if err := store.CacheUsername(100, "custom_name"); err != nil {
		t.Fatalf("cache failed: %v", err)
	}

	username, err := svc.Resolve(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if username != "custom_name" {
		t.Errorf("expected cached username, got %q", username)
	}
	if len(panel.existsCalls) != 1 {
		t.Errorf("cached hit should cost one revalidation call, got %v", panel.existsCalls)
	}
}

func TestResolveStaleCacheRevalidated(t *testing.T) {
	// The panel purged the cached account: resolution must fall through to
	// the candidate probes instead of trusting the stale mapping.
	panel := &fakePanel{existing: map[string]bool{"tg_100": true}}
	svc, store := newTestResolver(t, panel, true)

	if err := store.CacheUsername(100, "purged_name"); err != nil {
		t.Fatalf("cache failed: %v", err)
	}

	username, err := svc.Resolve(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if username != "tg_100" {
		t.Errorf("expected canonical username, got %q", username)
	}

	if cached, _ := store.CachedUsername(100); cached != "tg_100" {
		t.Errorf("stale mapping not replaced, cache holds %q", cached)
	}
}

func TestResolveHandleCandidate(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{"alice": true}}
	svc, _ := newTestResolver(t, panel, true)

	username, err := svc.Resolve(context.Background(), 100, "@alice")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if username != "alice" {
		t.Errorf("expected handle-derived username, got %q", username)
	}
}

func TestResolveSearchFallback(t *testing.T) {
	panel := &fakePanel{
		existing: map[string]bool{},
		searchHits: map[string][]marzban.User{
			"tg_100": {{Username: "TG_100"}},
		},
	}
	svc, store := newTestResolver(t, panel, true)

	username, err := svc.Resolve(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if username != "TG_100" {
		t.Errorf("expected search hit username, got %q", username)
	}
	if cached, _ := store.CachedUsername(100); cached != "TG_100" {
		t.Errorf("search hit not cached, got %q", cached)
	}
}

func TestResolveNotFound(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{}}
	svc, _ := newTestResolver(t, panel, true)

	_, err := svc.Resolve(context.Background(), 100, "@alice")
	if !errs.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestEnsureExistsIdempotent(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{}}
	svc, _ := newTestResolver(t, panel, true)

	created, username, err := svc.EnsureExists(context.Background(), 100, "alice")
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if !created || username != "tg_100" {
		t.Errorf("first call: created=%v username=%q, want true/tg_100", created, username)
	}

	created, username2, err := svc.EnsureExists(context.Background(), 100, "alice")
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if created {
		t.Error("second call must report created=false")
	}
	if username2 != username {
		t.Errorf("usernames differ across calls: %q vs %q", username, username2)
	}

	if len(panel.createCalls) != 1 {
		t.Errorf("expected exactly one create, got %d", len(panel.createCalls))
	}
}

func TestEnsureExistsCreatePayload(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{}}
	svc, _ := newTestResolver(t, panel, true)

	if _, _, err := svc.EnsureExists(context.Background(), 100, "alice"); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	user := panel.createCalls[0]
	if user.Username != "tg_100" {
		t.Errorf("unexpected username %q", user.Username)
	}
	vless, ok := user.Proxies["vless"]
	if !ok || vless["id"] == "" {
		t.Errorf("expected generated vless proxy id, got %+v", user.Proxies)
	}
	if tags := user.Inbounds["vless"]; len(tags) != 1 || tags[0] != "VLESS TCP" {
		t.Errorf("expected configured inbound tag, got %v", user.Inbounds)
	}
}

func TestEnsureExistsConflictIsSuccess(t *testing.T) {
	panel := &fakePanel{
		existing:  map[string]bool{},
		createErr: &errs.HTTPError{Operation: "create user", Code: http.StatusConflict},
	}
	svc, _ := newTestResolver(t, panel, true)

	created, username, err := svc.EnsureExists(context.Background(), 100, "")
	if err != nil {
		t.Fatalf("conflict must not surface as error, got %v", err)
	}
	if created {
		t.Error("conflict must report created=false")
	}
	if username != "tg_100" {
		t.Errorf("expected canonical username, got %q", username)
	}
}

func TestEnsureExistsValidationFailure(t *testing.T) {
	panel := &fakePanel{
		existing:  map[string]bool{},
		createErr: &errs.ValidationError{Operation: "create user", Detail: "bad proxy"},
	}
	svc, _ := newTestResolver(t, panel, true)

	_, _, err := svc.EnsureExists(context.Background(), 100, "")
	if !errs.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestEnsureExistsAuthFailureIsFatal(t *testing.T) {
	panel := &fakePanel{
		existing:  map[string]bool{},
		existsErr: &errs.AuthError{Operation: "check user"},
	}
	svc, _ := newTestResolver(t, panel, true)

	_, _, err := svc.EnsureExists(context.Background(), 100, "")
	if !errs.IsAuth(err) {
		t.Errorf("expected AuthError, got %v", err)
	}
}

func TestEnsureExistsAutoProvisionDisabled(t *testing.T) {
	panel := &fakePanel{existing: map[string]bool{}}
	svc, _ := newTestResolver(t, panel, false)

	_, _, err := svc.EnsureExists(context.Background(), 100, "")
	if !errs.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if len(panel.createCalls) != 0 {
		t.Errorf("no create must be attempted, got %d", len(panel.createCalls))
	}
}
