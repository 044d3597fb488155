package detector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/bayes"
	"github.com/NotA-Company/gromozeka-sub003/store/sqlite"
)

// fakePlatform records every moderation call.
type fakePlatform struct {
	mu          sync.Mutex
	sent        []string
	deleted     []int64
	bulkDeleted [][]int64
	banned      []int64
	senderBans  []int64
	unbanned    []int64
	admins      map[int64]bool
	nextMsgID   int64
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{admins: map[int64]bool{}, nextMsgID: 1000}
}

func (p *fakePlatform) SendMessage(_ context.Context, _ int64, text string, _ ...gromozeka.SendOption) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	p.nextMsgID++
	return p.nextMsgID, nil
}

func (p *fakePlatform) EditMessage(context.Context, int64, int64, string) error { return nil }

func (p *fakePlatform) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) DeleteMessages(_ context.Context, _ int64, ids []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bulkDeleted = append(p.bulkDeleted, ids)
	return nil
}

func (p *fakePlatform) BanChatMember(_ context.Context, _ int64, userID int64, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned = append(p.banned, userID)
	return nil
}

func (p *fakePlatform) BanChatSenderChat(_ context.Context, _ int64, senderChatID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senderBans = append(p.senderBans, senderChatID)
	return nil
}

func (p *fakePlatform) UnbanChatMember(_ context.Context, _ int64, userID int64, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unbanned = append(p.unbanned, userID)
	return nil
}

func (p *fakePlatform) IsAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	return p.admins[userID], nil
}

// fakeSettings answers from fixed maps; anything absent is the zero value.
type fakeSettings struct {
	bools  map[string]bool
	ints   map[string]int
	floats map[string]float64
}

func defaultSettings() *fakeSettings {
	return &fakeSettings{
		bools:  map[string]bool{gromozeka.KeyDetectSpam: true, gromozeka.KeyBayesAutoLearn: true},
		ints:   map[string]int{gromozeka.KeyAutoSpamMaxMessages: 10},
		floats: map[string]float64{gromozeka.KeySpamWarnThreshold: 50, gromozeka.KeySpamBanThreshold: 80},
	}
}

func (s *fakeSettings) String(context.Context, int64, string) string { return "" }
func (s *fakeSettings) Int(_ context.Context, _ int64, key string) int {
	return s.ints[key]
}
func (s *fakeSettings) Float(_ context.Context, _ int64, key string) float64 {
	return s.floats[key]
}
func (s *fakeSettings) Bool(_ context.Context, _ int64, key string) bool {
	return s.bools[key]
}
func (s *fakeSettings) List(context.Context, int64, string) []string { return nil }

// stubClassifier returns a fixed result and records learning calls.
type stubClassifier struct {
	mu      sync.Mutex
	result  bayes.Result
	spamTxt []string
	hamTxt  []string
}

func (c *stubClassifier) Classify(context.Context, string, gromozeka.Scope, float64) (bayes.Result, error) {
	return c.result, nil
}

func (c *stubClassifier) LearnSpam(_ context.Context, text string, _ gromozeka.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spamTxt = append(c.spamTxt, text)
	return nil
}

func (c *stubClassifier) LearnHam(_ context.Context, text string, _ gromozeka.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hamTxt = append(c.hamTxt, text)
	return nil
}

type fixture struct {
	det      *Detector
	store    *sqlite.Store
	platform *fakePlatform
	settings *fakeSettings
	bayes    *stubClassifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:    s,
		platform: newFakePlatform(),
		settings: defaultSettings(),
		bayes:    &stubClassifier{},
	}
	f.det = New(s, s, f.bayes, f.platform, f.settings)
	return f
}

func groupEnv(text string) *gromozeka.Envelope {
	return &gromozeka.Envelope{
		User:      gromozeka.User{ID: 7, Username: "newbie"},
		Chat:      gromozeka.Chat{ID: 1, Type: "supergroup"},
		MessageID: 100,
		Text:      text,
	}
}

func TestEarlyExits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	forward := groupEnv("any text")
	forward.AutoForward = true
	anon := groupEnv("any text")
	anon.SenderChatID = anon.Chat.ID
	empty := groupEnv("")

	for name, env := range map[string]*gromozeka.Envelope{
		"auto forward": forward,
		"anon admin":   anon,
		"empty text":   empty,
	} {
		res, err := f.det.Check(ctx, env)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res != gromozeka.SpamPass {
			t.Errorf("%s: result = %v, want pass", name, res)
		}
	}
	if len(f.platform.sent) != 0 {
		t.Errorf("early exits produced messages: %v", f.platform.sent)
	}
}

func TestEstablishedUserSkippedAndLearned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := gromozeka.User{ID: 7, Username: "newbie"}
	for range 12 {
		if err := f.store.UpsertChatUser(ctx, u, 1); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	env := groupEnv("check out https://example.com")
	env.Entities = []gromozeka.Entity{{Type: "url", Offset: 10, Length: 19}}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamPass {
		t.Errorf("established user flagged: %v", res)
	}
	if len(f.bayes.hamTxt) != 1 {
		t.Errorf("opportunistic ham learn calls = %d, want 1", len(f.bayes.hamTxt))
	}
}

func TestNotSpammerMetaSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SetUserMeta(ctx, 1, 7, gromozeka.MetaNotSpammer, "true"); err != nil {
		t.Fatalf("meta: %v", err)
	}

	env := groupEnv("spam spam spam")
	env.Entities = []gromozeka.Entity{
		{Type: "url", Offset: 0, Length: 4},
		{Type: "url", Offset: 5, Length: 4},
	}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamPass {
		t.Errorf("unbanned user re-flagged: %v", res)
	}
}

func TestURLEntityWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := groupEnv("check out https://example.com")
	env.Entities = []gromozeka.Entity{{Type: "url", Offset: 10, Length: 19}}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamWarned {
		t.Fatalf("result = %v, want warned", res)
	}
	if len(f.platform.sent) != 1 {
		t.Fatalf("sent = %v, want one warning", f.platform.sent)
	}
	if len(f.platform.banned) != 0 || len(f.platform.deleted) != 0 {
		t.Error("warning must not ban or delete")
	}
}

func TestBotMentionBans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text := "talk to @promoXbot now"
	env := groupEnv(text)
	env.Entities = []gromozeka.Entity{{Type: "mention", Offset: 8, Length: 10}}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// Stranger mention 60 + bot suffix 40 crosses the ban threshold 80.
	if res != gromozeka.SpamBanned {
		t.Fatalf("result = %v, want banned", res)
	}
	if len(f.platform.banned) != 1 || f.platform.banned[0] != 7 {
		t.Errorf("banned = %v, want [7]", f.platform.banned)
	}
	if len(f.platform.deleted) != 1 || f.platform.deleted[0] != 100 {
		t.Errorf("deleted = %v, want [100]", f.platform.deleted)
	}
	// Spam persisted and learned.
	if exists, _ := f.store.SpamTextExists(ctx, 1, text); !exists {
		t.Error("spam exemplar not persisted")
	}
	if len(f.bayes.spamTxt) != 1 {
		t.Errorf("spam learn calls = %d, want 1", len(f.bayes.spamTxt))
	}
	u, _, _ := f.store.GetChatUser(ctx, 1, 7)
	if !u.IsSpammer {
		t.Error("spammer flag not set")
	}
}

func TestKnownMemberMentionFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.UpsertChatUser(ctx, gromozeka.User{ID: 9, Username: "regular"}, 1); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	env := groupEnv("ask @regular about it")
	env.Entities = []gromozeka.Entity{{Type: "mention", Offset: 4, Length: 8}}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamPass {
		t.Errorf("known-member mention charged: %v", res)
	}
}

func TestDuplicateHeuristic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three copies of the same text plus one distinct message in history.
	for i := int64(1); i <= 3; i++ {
		m := gromozeka.StoredMessage{ChatID: 1, UserID: 7, MessageID: i, Text: "join my channel", CreatedAt: int64(i)}
		if err := f.store.RecordMessage(ctx, m); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := f.store.RecordMessage(ctx, gromozeka.StoredMessage{ChatID: 1, UserID: 7, MessageID: 4, Text: "hello", CreatedAt: 4}); err != nil {
		t.Fatalf("record: %v", err)
	}

	env := groupEnv("join my channel")
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// dup=3, nonDup=1: 100·4/5 = 80 ≥ warn 50, not above ban 80.
	if res != gromozeka.SpamWarned {
		t.Errorf("result = %v, want warned", res)
	}
}

func TestSingleRepeatBans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// History holds exactly one message, identical to the new one.
	// dup=1, nonDup=0: 100·2/2 = 100 crosses the ban threshold 80.
	first := gromozeka.StoredMessage{ChatID: 1, UserID: 7, MessageID: 1, Text: "Buy cheap deals!", CreatedAt: 1}
	if err := f.store.RecordMessage(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}

	res, err := f.det.Check(ctx, groupEnv("Buy cheap deals!"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamBanned {
		t.Errorf("result = %v, want banned", res)
	}
	if len(f.platform.banned) != 1 || f.platform.banned[0] != 7 {
		t.Errorf("banned = %v, want [7]", f.platform.banned)
	}
}

func TestSpamCorpusMatchBans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	known := gromozeka.StoredMessage{ChatID: 1, UserID: 99, MessageID: 5, Text: "buy cheap meds", Reason: gromozeka.ReasonAdmin, CreatedAt: 1}
	if err := f.store.AddSpam(ctx, known); err != nil {
		t.Fatalf("seed spam: %v", err)
	}

	res, err := f.det.Check(ctx, groupEnv("buy cheap meds"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamBanned {
		t.Errorf("result = %v, want banned", res)
	}
}

func TestBayesContribution(t *testing.T) {
	f := newFixture(t)
	f.settings.bools[gromozeka.KeyBayesEnabled] = true
	f.settings.floats[gromozeka.KeyBayesMinConfidence] = 0.1
	f.bayes.result = bayes.Result{Score: 90, Confidence: 0.8}
	ctx := context.Background()

	res, err := f.det.Check(ctx, groupEnv("some borderline text"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamBanned {
		t.Errorf("result = %v, want banned on bayes score", res)
	}

	// Below the confidence gate the score is ignored.
	f2 := newFixture(t)
	f2.settings.bools[gromozeka.KeyBayesEnabled] = true
	f2.settings.floats[gromozeka.KeyBayesMinConfidence] = 0.9
	f2.bayes.result = bayes.Result{Score: 90, Confidence: 0.2}
	res, err = f2.det.Check(ctx, groupEnv("some borderline text"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamPass {
		t.Errorf("low-confidence bayes applied: %v", res)
	}
}

func TestBayesSkippedAtBanThreshold(t *testing.T) {
	f := newFixture(t)
	f.settings.floats[gromozeka.KeySpamBanThreshold] = 60
	f.settings.bools[gromozeka.KeyBayesEnabled] = true
	f.settings.floats[gromozeka.KeyBayesMinConfidence] = 0.1
	f.bayes.result = bayes.Result{Score: 90, Confidence: 0.8}
	ctx := context.Background()

	// A single URL scores exactly the ban threshold. The classifier only
	// runs while the heuristic score sits below it, so the verdict stays
	// a warning.
	env := groupEnv("check out https://example.com")
	env.Entities = []gromozeka.Entity{{Type: "url", Offset: 10, Length: 19}}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamWarned {
		t.Errorf("result = %v, want warned", res)
	}
	if len(f.platform.banned) != 0 {
		t.Errorf("banned = %v, want none", f.platform.banned)
	}
}

func TestMarkSpamRefusesAdmins(t *testing.T) {
	f := newFixture(t)
	f.platform.admins[7] = true
	ctx := context.Background()

	err := f.det.MarkSpam(ctx, groupEnv("whatever"), gromozeka.ReasonAdmin, 100)
	if err == nil {
		t.Fatal("marking an admin must fail")
	}
	if len(f.platform.banned) != 0 {
		t.Error("admin was banned")
	}
	if len(f.platform.sent) != 1 {
		t.Errorf("alarm replies = %d, want 1", len(f.platform.sent))
	}
}

func TestMarkSpamCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := gromozeka.User{ID: 7, Username: "oldtimer"}
	for range 20 {
		if err := f.store.UpsertChatUser(ctx, u, 1); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := f.det.MarkSpam(ctx, groupEnv("text"), gromozeka.ReasonUser, 100); err == nil {
		t.Error("user-initiated mark above ceiling must fail")
	}
	if len(f.platform.banned) != 0 {
		t.Error("established user banned")
	}

	// Admin-initiated marks may override the ceiling when allowed.
	f.settings.bools[gromozeka.KeyAllowMarkSpamOldUsers] = true
	if err := f.det.MarkSpam(ctx, groupEnv("text"), gromozeka.ReasonAdmin, 100); err != nil {
		t.Errorf("admin override failed: %v", err)
	}
	if len(f.platform.banned) != 1 {
		t.Errorf("banned = %v, want one entry", f.platform.banned)
	}
}

func TestMarkSpamBulkDelete(t *testing.T) {
	f := newFixture(t)
	f.settings.bools[gromozeka.KeySpamDeleteAllMessages] = true
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		m := gromozeka.StoredMessage{ChatID: 1, UserID: 7, MessageID: i, Text: "x", CreatedAt: int64(i)}
		if err := f.store.RecordMessage(ctx, m); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if err := f.det.MarkSpam(ctx, groupEnv("spam text"), gromozeka.ReasonAdmin, 100); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(f.platform.bulkDeleted) != 1 || len(f.platform.bulkDeleted[0]) != 3 {
		t.Errorf("bulk deleted = %v, want one batch of 3", f.platform.bulkDeleted)
	}
}

func TestMarkSpamBansSenderChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := groupEnv("channel spam")
	env.SenderChatID = -200
	if err := f.det.MarkSpam(ctx, env, gromozeka.ReasonAdmin, 100); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(f.platform.senderBans) != 1 || f.platform.senderBans[0] != -200 {
		t.Errorf("sender bans = %v, want [-200]", f.platform.senderBans)
	}
}

func TestUnban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.SetSpammer(ctx, 1, 7, true); err != nil {
		t.Fatalf("seed spammer: %v", err)
	}
	for i := int64(1); i <= 2; i++ {
		m := gromozeka.StoredMessage{ChatID: 1, UserID: 7, MessageID: i, Text: "sp", Reason: gromozeka.ReasonAuto, CreatedAt: int64(i)}
		if err := f.store.AddSpam(ctx, m); err != nil {
			t.Fatalf("seed spam: %v", err)
		}
	}

	if err := f.det.Unban(ctx, 1, 7); err != nil {
		t.Fatalf("unban: %v", err)
	}

	if len(f.platform.unbanned) != 1 || f.platform.unbanned[0] != 7 {
		t.Errorf("unbanned = %v, want [7]", f.platform.unbanned)
	}
	u, _, _ := f.store.GetChatUser(ctx, 1, 7)
	if u.IsSpammer {
		t.Error("spammer flag still set")
	}
	if u.Metadata[gromozeka.MetaNotSpammer] != "true" {
		t.Errorf("unban flag missing: %v", u.Metadata)
	}
	if left, _ := f.store.SpamByUser(ctx, 1, 7); len(left) != 0 {
		t.Errorf("spam entries remain: %v", left)
	}

	// Future checks pass regardless of content.
	env := groupEnv("spam spam spam")
	env.Entities = []gromozeka.Entity{
		{Type: "url", Offset: 0, Length: 4},
		{Type: "url", Offset: 5, Length: 4},
	}
	res, err := f.det.Check(ctx, env)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res != gromozeka.SpamPass {
		t.Errorf("unbanned user flagged again: %v", res)
	}
}
