package hintstore_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintdb"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hints"
	"github.com/david-strejc/browsermcp-enhanced-sub000/internal/hintstore"
)

// ─── Test helpers ─────────────────────────────────────────────────────────────

var storeEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// testClock is a hand-cranked time source so scores and timestamps are
// deterministic.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time             { return c.now }
func (c *testClock) Advance(d time.Duration)    { c.now = c.now.Add(d) }
func (c *testClock) Retreat(days int) time.Time { return c.now.AddDate(0, 0, -days) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, opts hintstore.Options) (*hintstore.Store, *hintdb.DB, *testClock) {
	t.Helper()
	db, err := hintdb.New(filepath.Join(t.TempDir(), "hints.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if opts.AuthorID == "" {
		opts.AuthorID = "agent-1"
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	st := hintstore.New(db, opts)
	clock := &testClock{now: storeEpoch}
	st.SetClock(clock.Now)
	return st, db, clock
}

// attachStore builds a second store over an existing database, sharing the
// first store's clock.
func attachStore(t *testing.T, db *hintdb.DB, clock *testClock, opts hintstore.Options) *hintstore.Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	st := hintstore.New(db, opts)
	st.SetClock(clock.Now)
	return st
}

// candidateHint is a fresh, valid save candidate with no derived fields set.
func candidateHint() *hints.Hint {
	return &hints.Hint{
		Domain:        "github.com",
		PathPattern:   "/login",
		PatternType:   hints.PatternLogin,
		SelectorGuard: "#login-form",
		Recipe: []hints.ToolCallStep{
			{Tool: "browser_type", Args: map[string]any{"selector": "#username", "text": "octocat"}},
			{Tool: "browser_click", Args: map[string]any{"selector": "#submit"}},
		},
		Description: "Fill the username field and submit the login form.",
	}
}

// seedHint inserts a hint directly, deriving whatever the caller left unset.
func seedHint(t *testing.T, db *hintdb.DB, h hints.Hint) hints.Hint {
	t.Helper()
	if h.AuthorID == "" {
		h.AuthorID = "agent-1"
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = storeEpoch.AddDate(0, 0, -1)
	}
	if h.URLHash == "" {
		h.URLHash = hints.URLHash(h.Domain, h.PathPattern)
	}
	if h.ID == "" {
		h.ID = hints.HintID(h.Domain, h.PathPattern, h.AuthorID, h.CreatedAt)
	}
	if h.Version == 0 {
		h.Version = 1
	}
	if len(h.Recipe) == 0 {
		h.Recipe = []hints.ToolCallStep{{Tool: "browser_click", Args: map[string]any{"selector": "#go"}}}
	}
	if h.Description == "" {
		h.Description = "Seeded test hint."
	}
	if err := db.InsertHint(context.Background(), &h); err != nil {
		t.Fatalf("InsertHint(%s) error: %v", h.ID, err)
	}
	return h
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

const loginPageHTML = `<html><body>
<form id="login-form" class="auth">
<input type="text" name="username">
<input type="password" name="password">
<button type="submit">Log in</button>
</form>
</body></html>`

const landingPageHTML = `<html><body>
<nav><a href="/">Home</a><a href="/pricing">Pricing</a></nav>
<p>Welcome to the product.</p>
</body></html>`

// ─── Saving ───────────────────────────────────────────────────────────────────

func TestSaveHintAppliesDefaults(t *testing.T) {
	st, db, _ := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	candidate := candidateHint()
	res, err := st.SaveHint(ctx, candidate)
	if err != nil {
		t.Fatalf("SaveHint() error: %v", err)
	}
	if len(res.ID) != 16 {
		t.Errorf("result ID = %q, want 16 characters", res.ID)
	}
	if res.Superseded != "" {
		t.Errorf("Superseded = %q, want empty on first save", res.Superseded)
	}

	saved, err := db.HintByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("HintByID() error: %v", err)
	}
	if saved == nil {
		t.Fatal("saved hint not found")
	}
	if saved.AuthorID != "agent-1" {
		t.Errorf("AuthorID = %q, want agent-1", saved.AuthorID)
	}
	if saved.Confidence != hints.DefaultConfidence {
		t.Errorf("Confidence = %v, want %v", saved.Confidence, hints.DefaultConfidence)
	}
	if saved.Version != 1 || !saved.IsActive {
		t.Errorf("Version = %d, IsActive = %v, want 1 and true", saved.Version, saved.IsActive)
	}
	if want := hints.URLHash("github.com", "/login"); saved.URLHash != want {
		t.Errorf("URLHash = %q, want %q", saved.URLHash, want)
	}
	if !saved.CreatedAt.Equal(storeEpoch) {
		t.Errorf("CreatedAt = %v, want %v", saved.CreatedAt, storeEpoch)
	}

	// The caller's candidate is input only.
	if candidate.ID != "" || candidate.Confidence != 0 {
		t.Errorf("candidate mutated: ID=%q Confidence=%v", candidate.ID, candidate.Confidence)
	}
}

func TestSaveHintSanitizesRecipe(t *testing.T) {
	st, db, _ := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	candidate := candidateHint()
	candidate.Recipe[0].Args["apiKey"] = "sk-live-1234"

	res, err := st.SaveHint(ctx, candidate)
	if err != nil {
		t.Fatalf("SaveHint() error: %v", err)
	}
	saved, err := db.HintByID(ctx, res.ID)
	if err != nil || saved == nil {
		t.Fatalf("HintByID() = %v, %v", saved, err)
	}

	args := saved.Recipe[0].Args
	if _, ok := args["apiKey"]; ok {
		t.Error("apiKey survived sanitization")
	}
	if _, ok := args["text"]; ok {
		t.Error("text value survived sanitization")
	}
	if got, ok := args["text_length"]; !ok || got != float64(len("octocat")) {
		t.Errorf("text_length = %v, want %v", got, len("octocat"))
	}
	if args["selector"] != "#username" {
		t.Errorf("selector = %v, want #username", args["selector"])
	}
}

func TestSaveHintRejectsInvalid(t *testing.T) {
	st, _, _ := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	candidate := candidateHint()
	candidate.Domain = ""
	candidate.Description = "Contact admin@example.com for access."

	_, err := st.SaveHint(ctx, candidate)
	var verr *hintstore.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SaveHint() error = %v, want ValidationError", err)
	}
	if len(verr.Errors) < 2 {
		t.Errorf("ValidationError.Errors = %v, want domain and PII errors", verr.Errors)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalHints != 0 {
		t.Errorf("TotalHints = %d after rejected save, want 0", stats.TotalHints)
	}
}

func TestSaveHintRejectsSecretArgs(t *testing.T) {
	st, _, _ := newTestStore(t, hintstore.Options{})

	candidate := candidateHint()
	candidate.Recipe[0].Args["password"] = "hunter2"

	_, err := st.SaveHint(context.Background(), candidate)
	var verr *hintstore.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SaveHint() error = %v, want ValidationError", err)
	}
	if !hasWarning(verr.Errors, "password") {
		t.Errorf("errors %v do not mention the secret key", verr.Errors)
	}
}

func TestSaveHintConflict(t *testing.T) {
	st, _, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	first, err := st.SaveHint(ctx, candidateHint())
	if err != nil {
		t.Fatalf("first SaveHint() error: %v", err)
	}
	clock.Advance(time.Hour)

	for _, confidence := range []float64{0, 0.3, hints.DefaultConfidence} {
		retry := candidateHint()
		retry.Confidence = confidence
		_, err := st.SaveHint(ctx, retry)

		var cerr *hintstore.ConflictError
		if !errors.As(err, &cerr) {
			t.Fatalf("SaveHint(confidence=%v) error = %v, want ConflictError", confidence, err)
		}
		if cerr.ExistingID != first.ID {
			t.Errorf("ExistingID = %q, want %q", cerr.ExistingID, first.ID)
		}
		if cerr.ExistingConfidence != hints.DefaultConfidence {
			t.Errorf("ExistingConfidence = %v, want %v", cerr.ExistingConfidence, hints.DefaultConfidence)
		}
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalHints != 1 {
		t.Errorf("TotalHints = %d, want 1 after rejected retries", stats.TotalHints)
	}
}

func TestSaveHintSupersedes(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	first, err := st.SaveHint(ctx, candidateHint())
	if err != nil {
		t.Fatalf("first SaveHint() error: %v", err)
	}
	clock.Advance(time.Hour)

	improved := candidateHint()
	improved.Confidence = 0.8
	res, err := st.SaveHint(ctx, improved)
	if err != nil {
		t.Fatalf("second SaveHint() error: %v", err)
	}
	if res.Superseded != first.ID {
		t.Errorf("Superseded = %q, want %q", res.Superseded, first.ID)
	}

	replacement, err := db.HintByID(ctx, res.ID)
	if err != nil || replacement == nil {
		t.Fatalf("HintByID(%s) = %v, %v", res.ID, replacement, err)
	}
	if replacement.Version != 2 {
		t.Errorf("Version = %d, want 2", replacement.Version)
	}
	if replacement.ParentHintID != first.ID {
		t.Errorf("ParentHintID = %q, want %q", replacement.ParentHintID, first.ID)
	}

	old, err := db.HintByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("HintByID(%s) error: %v", first.ID, err)
	}
	if old != nil {
		t.Error("superseded hint still active")
	}

	stats, _ := st.Stats(ctx)
	if stats.TotalHints != 2 || stats.ActiveHints != 1 {
		t.Errorf("TotalHints = %d, ActiveHints = %d, want 2 and 1", stats.TotalHints, stats.ActiveHints)
	}
}

func TestSaveHintScopeIsPerAuthor(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	if _, err := st.SaveHint(ctx, candidateHint()); err != nil {
		t.Fatalf("agent-1 SaveHint() error: %v", err)
	}

	other := attachStore(t, db, clock, hintstore.Options{AuthorID: "agent-2"})
	if _, err := other.SaveHint(ctx, candidateHint()); err != nil {
		t.Fatalf("agent-2 SaveHint() error: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.ActiveHints != 2 {
		t.Errorf("ActiveHints = %d, want one per author", stats.ActiveHints)
	}
}

func TestSaveHintDuplicateWarning(t *testing.T) {
	st, _, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	if _, err := st.SaveHint(ctx, candidateHint()); err != nil {
		t.Fatalf("first SaveHint() error: %v", err)
	}
	clock.Advance(time.Hour)

	lookalike := candidateHint()
	lookalike.PathPattern = "/signin"
	lookalike.Description = "Submit the sign-in form on the alternate page."
	res, err := st.SaveHint(ctx, lookalike)
	if err != nil {
		t.Fatalf("second SaveHint() error: %v", err)
	}
	if !hasWarning(res.Warnings, "similar hint") {
		t.Errorf("Warnings = %v, want a duplicate notice", res.Warnings)
	}
}

func TestSaveHintQualityWarning(t *testing.T) {
	st, _, _ := newTestStore(t, hintstore.Options{})

	sloppy := &hints.Hint{
		Domain:      "example.com",
		PatternType: hints.PatternFormFill,
		Description: "Fill form",
	}
	for i := 0; i < 11; i++ {
		sloppy.Recipe = append(sloppy.Recipe, hints.ToolCallStep{
			Tool:        "browser_click",
			Args:        map[string]any{"selector": fmt.Sprintf("#field-%d", i)},
			WaitAfterMs: 1000,
		})
	}

	res, err := st.SaveHint(context.Background(), sloppy)
	if err != nil {
		t.Fatalf("SaveHint() error: %v", err)
	}
	if !hasWarning(res.Warnings, "quality score") {
		t.Errorf("Warnings = %v, want a quality notice", res.Warnings)
	}
	if res.Quality.Overall >= 0.5 {
		t.Errorf("Quality.Overall = %v, want under 0.5", res.Quality.Overall)
	}
}

// ─── Retrieval ────────────────────────────────────────────────────────────────

func TestGetHintsMergesExactAndDomain(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	exact := seedHint(t, db, hints.Hint{
		ID: "exact00000000001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 5, Confidence: hints.ConfidenceFor(5, 0),
		LastSuccessAt: clock.Retreat(1),
	})
	nearby := seedHint(t, db, hints.Hint{
		ID: "nearby0000000001", Domain: "github.com", PathPattern: "/settings",
		PatternType: hints.PatternNavigation, IsActive: true,
		SuccessCount: 2, Confidence: hints.ConfidenceFor(2, 0),
		LastSuccessAt: clock.Retreat(10),
	})
	seedHint(t, db, hints.Hint{
		ID: "foreign000000001", Domain: "gitlab.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 9, Confidence: hints.ConfidenceFor(9, 0),
		LastSuccessAt: clock.Retreat(1),
	})
	seedHint(t, db, hints.Hint{
		ID: "retired000000001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: false,
		SuccessCount: 9, Confidence: hints.ConfidenceFor(9, 0),
		LastSuccessAt: clock.Retreat(1),
	})

	got, err := st.GetHints(ctx, "https://github.com/login", 5)
	if err != nil {
		t.Fatalf("GetHints() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetHints() returned %d hints, want 2", len(got))
	}
	if got[0].ID != exact.ID {
		t.Errorf("top hint = %s, want exact-scope %s", got[0].ID, exact.ID)
	}
	if got[1].ID != nearby.ID {
		t.Errorf("second hint = %s, want domain-wide %s", got[1].ID, nearby.ID)
	}
}

func TestGetHintsDefaultLimit(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})

	for i := 1; i <= 7; i++ {
		seedHint(t, db, hints.Hint{
			ID: fmt.Sprintf("ranked%010d", i),
			Domain: "github.com", PathPattern: "/login",
			PatternType: hints.PatternLogin, IsActive: true,
			SuccessCount: i, Confidence: 0.3 + 0.05*float64(i),
			LastSuccessAt: clock.Retreat(1),
		})
	}

	got, err := st.GetHints(context.Background(), "https://github.com/login", 0)
	if err != nil {
		t.Fatalf("GetHints() error: %v", err)
	}
	if len(got) != hintstore.DefaultHintLimit {
		t.Fatalf("GetHints() returned %d hints, want %d", len(got), hintstore.DefaultHintLimit)
	}
	if got[0].SuccessCount != 7 {
		t.Errorf("top hint has %d successes, want the strongest (7)", got[0].SuccessCount)
	}
	for i := 1; i < len(got); i++ {
		if got[i].SuccessCount > got[i-1].SuccessCount {
			t.Errorf("hints out of order at %d: %d successes after %d",
				i, got[i].SuccessCount, got[i-1].SuccessCount)
		}
	}
}

func TestSearchFilters(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	seedHint(t, db, hints.Hint{
		ID: "strongloginhint1", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 4, Confidence: 0.9, LastSuccessAt: clock.Retreat(1),
	})
	seedHint(t, db, hints.Hint{
		ID: "weakloginhint001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 1, Confidence: 0.2, LastSuccessAt: clock.Retreat(1),
	})
	seedHint(t, db, hints.Hint{
		ID: "navigationhint01", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternNavigation, IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})

	byConfidence, err := st.Search(ctx, hintstore.Query{
		URL: "https://github.com/login", MinConfidence: 0.5,
	})
	if err != nil {
		t.Fatalf("Search(MinConfidence) error: %v", err)
	}
	for _, h := range byConfidence {
		if h.Confidence < 0.5 {
			t.Errorf("hint %s with confidence %v passed the floor", h.ID, h.Confidence)
		}
	}
	if len(byConfidence) != 2 {
		t.Errorf("Search(MinConfidence) returned %d hints, want 2", len(byConfidence))
	}

	byPattern, err := st.Search(ctx, hintstore.Query{
		URL: "https://github.com/login", PatternType: hints.PatternNavigation,
	})
	if err != nil {
		t.Fatalf("Search(PatternType) error: %v", err)
	}
	if len(byPattern) != 1 || byPattern[0].ID != "navigationhint01" {
		t.Errorf("Search(PatternType) = %v, want only the navigation hint", byPattern)
	}

	exactOnly, err := st.Search(ctx, hintstore.Query{
		URL: "https://github.com/settings", ExactOnly: true,
	})
	if err != nil {
		t.Fatalf("Search(ExactOnly) error: %v", err)
	}
	if len(exactOnly) != 0 {
		t.Errorf("Search(ExactOnly) for an unlearned path returned %d hints", len(exactOnly))
	}
}

func TestSearchRejectsBadURL(t *testing.T) {
	st, _, _ := newTestStore(t, hintstore.Options{})
	if _, err := st.GetHints(context.Background(), "not a url", 5); err == nil {
		t.Error("GetHints() accepted a URL without a host")
	}
}

func TestFindMatchingHintsAdvisoryRanksGuards(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})

	present := seedHint(t, db, hints.Hint{
		ID: "guardpresent0001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, SelectorGuard: "#login-form", IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})
	absent := seedHint(t, db, hints.Hint{
		ID: "guardabsent00001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, SelectorGuard: "#missing-panel", IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})

	dom := hints.NewSnapshotDOM(loginPageHTML)
	got, err := st.FindMatchingHints(context.Background(), "https://github.com/login", dom, 5)
	if err != nil {
		t.Fatalf("FindMatchingHints() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("advisory policy returned %d hints, want both", len(got))
	}
	if got[0].ID != present.ID || got[1].ID != absent.ID {
		t.Errorf("order = [%s, %s], want guard-present first", got[0].ID, got[1].ID)
	}
}

func TestFindMatchingHintsStrictExcludes(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{Policy: hintstore.MatchStrict})

	present := seedHint(t, db, hints.Hint{
		ID: "guardpresent0001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, SelectorGuard: "#login-form", IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})
	seedHint(t, db, hints.Hint{
		ID: "guardabsent00001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, SelectorGuard: "#missing-panel", IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})

	dom := hints.NewSnapshotDOM(loginPageHTML)
	got, err := st.FindMatchingHints(context.Background(), "https://github.com/login", dom, 5)
	if err != nil {
		t.Fatalf("FindMatchingHints() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != present.ID {
		t.Errorf("strict policy returned %v, want only the guarded hint", ids(got))
	}
}

func TestFindMatchingHintsPathGate(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	anyPath := seedHint(t, db, hints.Hint{
		ID: "anypathhint00001", Domain: "github.com",
		PatternType: hints.PatternNavigation, IsActive: true,
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})
	seedHint(t, db, hints.Hint{
		ID: "adminonlyhint001", Domain: "github.com", PathPattern: "/admin/**",
		PatternType: hints.PatternNavigation, IsActive: true,
		SuccessCount: 2, Confidence: 0.9, LastSuccessAt: clock.Retreat(1),
	})

	// Path scoping holds with and without a DOM.
	withDOM, err := st.FindMatchingHints(ctx, "https://github.com/login", hints.NewSnapshotDOM(loginPageHTML), 5)
	if err != nil {
		t.Fatalf("FindMatchingHints() error: %v", err)
	}
	if len(withDOM) != 1 || withDOM[0].ID != anyPath.ID {
		t.Errorf("with DOM: got %v, want only the unscoped hint", ids(withDOM))
	}

	withoutDOM, err := st.FindMatchingHints(ctx, "https://github.com/login", nil, 5)
	if err != nil {
		t.Fatalf("FindMatchingHints(nil DOM) error: %v", err)
	}
	if len(withoutDOM) != 1 || withoutDOM[0].ID != anyPath.ID {
		t.Errorf("without DOM: got %v, want only the unscoped hint", ids(withoutDOM))
	}

	// Plain retrieval keeps domain-wide hints regardless of path.
	plain, err := st.GetHints(ctx, "https://github.com/login", 5)
	if err != nil {
		t.Fatalf("GetHints() error: %v", err)
	}
	if len(plain) != 2 {
		t.Errorf("GetHints() returned %d hints, want both", len(plain))
	}
}

func TestFindMatchingHintsFingerprintWeighting(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})

	matching := seedHint(t, db, hints.Hint{
		ID: "sameshapehint001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		DOMFingerprint: hints.HTMLFingerprint(loginPageHTML),
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})
	drifted := seedHint(t, db, hints.Hint{
		ID: "oldshapehint0001", Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		DOMFingerprint: hints.HTMLFingerprint(landingPageHTML),
		SuccessCount: 2, Confidence: 0.6, LastSuccessAt: clock.Retreat(1),
	})

	dom := hints.NewSnapshotDOM(loginPageHTML)
	got, err := st.FindMatchingHints(context.Background(), "https://github.com/login", dom, 5)
	if err != nil {
		t.Fatalf("FindMatchingHints() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("fingerprint drift excluded a hint: got %v", ids(got))
	}
	if got[0].ID != matching.ID || got[1].ID != drifted.ID {
		t.Errorf("order = %v, want the matching fingerprint first", ids(got))
	}
}

func ids(hs []hints.Hint) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.ID
	}
	return out
}

// ─── Execution outcomes ───────────────────────────────────────────────────────

func TestUpdateHintStatsSuccess(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	seeded := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		Confidence: hints.DefaultConfidence,
	})

	updated, err := st.UpdateHintStats(ctx, seeded.ID, hints.ExecutionReport{
		Success: true, ExecutionTimeMs: 800,
	})
	if err != nil {
		t.Fatalf("UpdateHintStats() error: %v", err)
	}
	if updated.SuccessCount != 1 || updated.FailureCount != 0 {
		t.Errorf("counters = (%d, %d), want (1, 0)", updated.SuccessCount, updated.FailureCount)
	}
	if want := hints.ConfidenceFor(1, 0); math.Abs(updated.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", updated.Confidence, want)
	}
	if !updated.LastUsedAt.Equal(clock.Now()) || !updated.LastSuccessAt.Equal(clock.Now()) {
		t.Errorf("timestamps = (%v, %v), want the report time", updated.LastUsedAt, updated.LastSuccessAt)
	}
	if !updated.IsActive {
		t.Error("hint deactivated after a success")
	}

	history, err := st.HistoryFor(ctx, seeded.ID, 10)
	if err != nil {
		t.Fatalf("HistoryFor() error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d records, want 1", len(history))
	}
	rec := history[0]
	if !rec.Success || rec.ExecutionTimeMs != 800 || rec.AuthorID != "agent-1" {
		t.Errorf("history record = %+v", rec)
	}
}

func TestUpdateHintStatsFailure(t *testing.T) {
	st, db, _ := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	seeded := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		Confidence: hints.DefaultConfidence,
	})

	updated, err := st.UpdateHintStats(ctx, seeded.ID, hints.ExecutionReport{
		Success: false, ErrorMessage: "selector #submit not found",
	})
	if err != nil {
		t.Fatalf("UpdateHintStats() error: %v", err)
	}
	if updated.FailureCount != 1 || updated.SuccessCount != 0 {
		t.Errorf("counters = (%d, %d), want (0, 1)", updated.SuccessCount, updated.FailureCount)
	}
	if want := hints.ConfidenceFor(0, 1); math.Abs(updated.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", updated.Confidence, want)
	}
	if !updated.LastSuccessAt.IsZero() {
		t.Errorf("LastSuccessAt = %v after a failure, want zero", updated.LastSuccessAt)
	}
	if updated.LastUsedAt.IsZero() {
		t.Error("LastUsedAt not set by a failure")
	}

	history, _ := st.HistoryFor(ctx, seeded.ID, 10)
	if len(history) != 1 || history[0].ErrorMessage != "selector #submit not found" {
		t.Errorf("history = %+v, want the failure message", history)
	}
}

func TestUpdateHintStatsNotFound(t *testing.T) {
	st, _, _ := newTestStore(t, hintstore.Options{})

	_, err := st.UpdateHintStats(context.Background(), "nosuchhint000001", hints.ExecutionReport{Success: true})
	var nferr *hintstore.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("UpdateHintStats() error = %v, want NotFoundError", err)
	}
	if nferr.ID != "nosuchhint000001" {
		t.Errorf("NotFoundError.ID = %q", nferr.ID)
	}
}

func TestUpdateHintStatsAutoDeactivates(t *testing.T) {
	st, db, _ := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	failing := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		FailureCount: 10, Confidence: hints.ConfidenceFor(0, 10),
	})

	updated, err := st.UpdateHintStats(ctx, failing.ID, hints.ExecutionReport{Success: false})
	if err != nil {
		t.Fatalf("UpdateHintStats() error: %v", err)
	}
	if updated.FailureCount != 11 {
		t.Errorf("FailureCount = %d, want 11", updated.FailureCount)
	}
	if updated.IsActive {
		t.Error("hint still active past the failure threshold")
	}

	gone, err := db.HintByID(ctx, failing.ID)
	if err != nil {
		t.Fatalf("HintByID() error: %v", err)
	}
	if gone != nil {
		t.Error("deactivated hint still returned as active")
	}
}

func TestUpdateHintStatsThresholdIsStrict(t *testing.T) {
	st, db, _ := newTestStore(t, hintstore.Options{})

	borderline := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		FailureCount: 9, Confidence: hints.ConfidenceFor(0, 9),
	})

	updated, err := st.UpdateHintStats(context.Background(), borderline.ID, hints.ExecutionReport{Success: false})
	if err != nil {
		t.Fatalf("UpdateHintStats() error: %v", err)
	}
	// Exactly ten failures is not yet past the threshold.
	if updated.FailureCount != 10 || !updated.IsActive {
		t.Errorf("FailureCount = %d, IsActive = %v, want 10 and true", updated.FailureCount, updated.IsActive)
	}
}

// ─── Conflict resolution ──────────────────────────────────────────────────────

func TestResolveConflictChallengerWins(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	incumbent := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 1, Confidence: 0.4, LastSuccessAt: clock.Retreat(60),
	})
	challenger := &hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin,
		Recipe: []hints.ToolCallStep{
			{Tool: "browser_click", Args: map[string]any{"selector": "#sso-login"}},
		},
		Description: "Use the single sign-on button instead of the form.",
		SuccessCount: 10, Confidence: 0.9, LastSuccessAt: clock.Now(),
		CreatedAt: clock.Now(),
	}

	winner, err := st.ResolveConflict(ctx, &incumbent, challenger)
	if err != nil {
		t.Fatalf("ResolveConflict() error: %v", err)
	}
	if winner.ID == incumbent.ID {
		t.Fatal("incumbent won against a far stronger challenger")
	}
	if winner.ParentHintID != incumbent.ID || winner.Version != incumbent.Version+1 {
		t.Errorf("winner lineage = (%q, %d), want (%q, %d)",
			winner.ParentHintID, winner.Version, incumbent.ID, incumbent.Version+1)
	}

	promoted, err := db.HintByID(ctx, winner.ID)
	if err != nil || promoted == nil {
		t.Fatalf("winner not persisted: %v, %v", promoted, err)
	}
	if old, _ := db.HintByID(ctx, incumbent.ID); old != nil {
		t.Error("losing incumbent still active")
	}

	conflicts, err := db.ConflictsFor(ctx, "github.com", 10)
	if err != nil {
		t.Fatalf("ConflictsFor() error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflict audit has %d records, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Resolution != hints.ResolutionSuperseded || c.HintA != incumbent.ID || c.HintB != winner.ID {
		t.Errorf("audit record = %+v", c)
	}
}

func TestResolveConflictRetainsIncumbent(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	incumbent := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 5, Confidence: 0.8, LastSuccessAt: clock.Retreat(1),
	})
	challenger := &hints.Hint{
		ID:            "challenger000001",
		Domain:        "github.com",
		PathPattern:   "/login",
		PatternType:   hints.PatternLogin,
		SuccessCount:  1,
		Confidence:    0.5,
		LastSuccessAt: clock.Retreat(20),
	}

	kept, err := st.ResolveConflict(ctx, &incumbent, challenger)
	if err != nil {
		t.Fatalf("ResolveConflict() error: %v", err)
	}
	if kept.ID != incumbent.ID {
		t.Errorf("kept = %s, want incumbent %s", kept.ID, incumbent.ID)
	}
	if still, _ := db.HintByID(ctx, incumbent.ID); still == nil {
		t.Error("incumbent deactivated despite winning")
	}
	if persisted, _ := db.HintByID(ctx, challenger.ID); persisted != nil {
		t.Error("losing challenger was persisted")
	}

	conflicts, _ := db.ConflictsFor(ctx, "github.com", 10)
	if len(conflicts) != 1 || conflicts[0].Resolution != hints.ResolutionRetained {
		t.Errorf("audit = %+v, want one retained record", conflicts)
	}
}

func TestResolveConflictBoundaryRetains(t *testing.T) {
	// A challenger at exactly 1.5x the incumbent's score does not win; the
	// margin must be exceeded.
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	incumbent := seedHint(t, db, hints.Hint{
		Domain: "github.com", PathPattern: "/login",
		PatternType: hints.PatternLogin, IsActive: true,
		SuccessCount: 4, Confidence: 0.5, LastSuccessAt: clock.Now(),
	})
	challenger := &hints.Hint{
		ID:            "challenger000001",
		Domain:        "github.com",
		PathPattern:   "/login",
		PatternType:   hints.PatternLogin,
		SuccessCount:  4,
		Confidence:    0.75,
		LastSuccessAt: clock.Now(),
	}

	kept, err := st.ResolveConflict(ctx, &incumbent, challenger)
	if err != nil {
		t.Fatalf("ResolveConflict() error: %v", err)
	}
	if kept.ID != incumbent.ID {
		t.Errorf("kept = %s, want incumbent at the exact boundary", kept.ID)
	}
}

// ─── Maintenance ──────────────────────────────────────────────────────────────

func TestPruneStaleHints(t *testing.T) {
	st, db, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	stale := seedHint(t, db, hints.Hint{
		ID: "stalehint0000001", Domain: "github.com", PathPattern: "/old",
		PatternType: hints.PatternNavigation, IsActive: true,
		Confidence: 0.2, LastUsedAt: clock.Retreat(100),
	})
	fresh := seedHint(t, db, hints.Hint{
		ID: "freshhint0000001", Domain: "github.com", PathPattern: "/new",
		PatternType: hints.PatternNavigation, IsActive: true,
		Confidence: 0.2, LastUsedAt: clock.Retreat(1),
	})
	neverUsed := seedHint(t, db, hints.Hint{
		ID: "neverusedhint001", Domain: "github.com", PathPattern: "/idle",
		PatternType: hints.PatternNavigation, IsActive: true,
		Confidence: 0.1, CreatedAt: clock.Retreat(200),
	})

	// Zero days falls back to the default horizon.
	n, err := st.PruneStaleHints(ctx, 0)
	if err != nil {
		t.Fatalf("PruneStaleHints() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d hints, want only the stale one", n)
	}
	if h, _ := db.HintByID(ctx, stale.ID); h != nil {
		t.Error("stale hint survived pruning")
	}
	if h, _ := db.HintByID(ctx, fresh.ID); h == nil {
		t.Error("fresh hint was pruned")
	}
	if h, _ := db.HintByID(ctx, neverUsed.ID); h == nil {
		t.Error("never-used hint was pruned by the default policy")
	}

	// Opting in sweeps never-used hints by age.
	aggressive := attachStore(t, db, clock, hintstore.Options{PruneNeverUsed: true})
	n, err = aggressive.PruneStaleHints(ctx, 90)
	if err != nil {
		t.Fatalf("PruneStaleHints(never-used) error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d hints, want the never-used one", n)
	}
	if h, _ := db.HintByID(ctx, neverUsed.ID); h != nil {
		t.Error("never-used hint survived opt-in pruning")
	}
}

// ─── End to end ───────────────────────────────────────────────────────────────

func TestLearningLifecycle(t *testing.T) {
	st, _, clock := newTestStore(t, hintstore.Options{})
	ctx := context.Background()

	res, err := st.SaveHint(ctx, candidateHint())
	if err != nil {
		t.Fatalf("SaveHint() error: %v", err)
	}

	// A fresh hint is retrievable even though it has no proven successes.
	found, err := st.FindMatchingHints(ctx, "https://github.com/login", hints.NewSnapshotDOM(loginPageHTML), 5)
	if err != nil {
		t.Fatalf("FindMatchingHints() error: %v", err)
	}
	if len(found) != 1 || found[0].ID != res.ID {
		t.Fatalf("fresh hint not retrievable: %v", ids(found))
	}

	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		if _, err := st.UpdateHintStats(ctx, res.ID, hints.ExecutionReport{Success: true}); err != nil {
			t.Fatalf("success report %d error: %v", i+1, err)
		}
	}

	// Then the site changes and the recipe starts failing. The eleventh
	// failure lands confidence exactly on the deactivation threshold, which
	// is not below it; the twelfth crosses it and retires the hint.
	var last *hints.Hint
	for i := 0; i < 12; i++ {
		clock.Advance(time.Minute)
		last, err = st.UpdateHintStats(ctx, res.ID, hints.ExecutionReport{
			Success: false, ErrorMessage: "layout changed",
		})
		if err != nil {
			t.Fatalf("failure report %d error: %v", i+1, err)
		}
		if i < 11 && !last.IsActive {
			t.Fatalf("hint deactivated after %d failures, want 12", i+1)
		}
	}
	if last.IsActive {
		t.Error("hint still active after sustained failure")
	}
	if want := hints.ConfidenceFor(2, 12); math.Abs(last.Confidence-want) > 1e-9 {
		t.Errorf("final confidence = %v, want %v", last.Confidence, want)
	}

	found, err = st.GetHints(ctx, "https://github.com/login", 5)
	if err != nil {
		t.Fatalf("GetHints() after deactivation error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("deactivated hint still retrievable: %v", ids(found))
	}

	history, err := st.HistoryFor(ctx, res.ID, 20)
	if err != nil {
		t.Fatalf("HistoryFor() error: %v", err)
	}
	if len(history) != 14 {
		t.Errorf("history has %d records, want every execution", len(history))
	}
	if history[0].Success || history[0].ErrorMessage != "layout changed" {
		t.Errorf("newest record = %+v, want the last failure", history[0])
	}
}
