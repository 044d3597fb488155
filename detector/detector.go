// Package detector implements the spam decision engine: heuristic scoring
// over message history, entities and the spam corpus, backed by the Bayes
// classifier, with ban/warn enforcement through the platform adapter.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/bayes"
)

// notificationTTL is how long ban notifications stay visible before the
// delayed delete removes them.
const notificationTTL = 60 * time.Second

// recentWindow is how many of the user's latest messages heuristics look at.
const recentWindow = 10

// Classifier is the slice of the Bayes classifier the detector needs.
type Classifier interface {
	Classify(ctx context.Context, text string, scope gromozeka.Scope, threshold float64) (bayes.Result, error)
	LearnSpam(ctx context.Context, text string, scope gromozeka.Scope) error
	LearnHam(ctx context.Context, text string, scope gromozeka.Scope) error
}

// Detector scores inbound messages and carries out the resulting
// moderation action. It implements gromozeka.SpamChecker.
type Detector struct {
	users      gromozeka.UserStore
	messages   gromozeka.MessageStore
	classifier Classifier
	platform   gromozeka.Platform
	settings   gromozeka.Settings
	delay      *gromozeka.DelayQueue
	logger     *slog.Logger
	tracer     gromozeka.Tracer
	now        func() time.Time
}

var _ gromozeka.SpamChecker = (*Detector)(nil)

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithTracer enables span creation around checks and mark actions.
func WithTracer(t gromozeka.Tracer) Option {
	return func(d *Detector) { d.tracer = t }
}

// WithDelayQueue sets the queue used to expire ban notifications. Without
// one, notifications stay.
func WithDelayQueue(q *gromozeka.DelayQueue) Option {
	return func(d *Detector) { d.delay = q }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New creates a Detector.
func New(
	users gromozeka.UserStore,
	messages gromozeka.MessageStore,
	classifier Classifier,
	platform gromozeka.Platform,
	settings gromozeka.Settings,
	opts ...Option,
) *Detector {
	d := &Detector{
		users:      users,
		messages:   messages,
		classifier: classifier,
		platform:   platform,
		settings:   settings,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Check scores one message and enforces the verdict: ban above the ban
// threshold, warn at the warn threshold, otherwise pass.
func (d *Detector) Check(ctx context.Context, env *gromozeka.Envelope) (gromozeka.SpamResult, error) {
	if d.tracer != nil {
		var span gromozeka.Span
		ctx, span = d.tracer.Start(ctx, "detector.check",
			gromozeka.Int64Attr("chat.id", env.Chat.ID),
			gromozeka.Int64Attr("user.id", env.User.ID))
		defer span.End()
	}

	chatID, userID := env.Chat.ID, env.User.ID

	// Linked-channel forwards and anonymous admin posts are never checked.
	if env.AutoForward {
		return gromozeka.SpamPass, nil
	}
	if env.SenderChatID == chatID || userID == chatID {
		return gromozeka.SpamPass, nil
	}
	if env.Text == "" {
		return gromozeka.SpamPass, nil
	}

	user, _, err := d.users.GetChatUser(ctx, chatID, userID)
	if err != nil {
		return gromozeka.SpamPass, fmt.Errorf("load chat user: %w", err)
	}
	if user.Metadata[gromozeka.MetaNotSpammer] == "true" {
		return gromozeka.SpamPass, nil
	}

	maxMsgs := int64(d.settings.Int(ctx, chatID, gromozeka.KeyAutoSpamMaxMessages))
	if maxMsgs > 0 && user.MessageCount >= maxMsgs {
		// Established users are trusted; their messages feed the ham corpus.
		if !user.IsSpammer {
			if err := d.classifier.LearnHam(ctx, env.Text, gromozeka.ChatScope(chatID)); err != nil {
				d.logger.Debug("opportunistic ham learn failed", "chat", chatID, "err", err)
			}
		}
		return gromozeka.SpamPass, nil
	}

	score := d.score(ctx, env, user)

	warnT := d.settings.Float(ctx, chatID, gromozeka.KeySpamWarnThreshold)
	banT := d.settings.Float(ctx, chatID, gromozeka.KeySpamBanThreshold)

	if score < banT && d.settings.Bool(ctx, chatID, gromozeka.KeyBayesEnabled) {
		res, err := d.classifier.Classify(ctx, env.Text, gromozeka.ChatScope(chatID), warnT)
		if err != nil {
			d.logger.Warn("bayes classify failed", "chat", chatID, "err", err)
		} else if res.Confidence >= d.settings.Float(ctx, chatID, gromozeka.KeyBayesMinConfidence) {
			score += res.Score
		}
	}

	d.logger.Debug("spam check scored",
		"chat", chatID, "user", userID, "message", env.MessageID, "score", score)

	switch {
	case score > banT:
		d.notifyBan(ctx, env, score)
		d.MarkSpam(ctx, env, gromozeka.ReasonAuto, score)
		return gromozeka.SpamBanned, nil
	case score >= warnT:
		text := fmt.Sprintf("This message looks like spam (score %.0f). Repeated offenses lead to a ban.", score)
		if _, err := d.platform.SendMessage(ctx, chatID, text, gromozeka.WithReplyTo(env.MessageID)); err != nil {
			d.logger.Warn("warn message failed", "chat", chatID, "err", err)
		}
		return gromozeka.SpamWarned, nil
	default:
		return gromozeka.SpamPass, nil
	}
}

// score runs the heuristic accumulators. The result is unbounded upward;
// thresholds interpret it on the same scale the classifier uses.
func (d *Detector) score(ctx context.Context, env *gromozeka.Envelope, user gromozeka.ChatUser) float64 {
	chatID, userID := env.Chat.ID, env.User.ID
	var score float64

	if user.IsSpammer {
		score += 100
	}

	recent, err := d.messages.RecentMessages(ctx, chatID, userID, recentWindow)
	if err != nil {
		d.logger.Warn("recent messages failed", "chat", chatID, "err", err)
	} else if len(recent) > 0 {
		var dup, nonDup float64
		for _, m := range recent {
			if m.MessageID == env.MessageID {
				continue
			}
			if m.Text == env.Text {
				dup++
			} else {
				nonDup++
			}
		}
		if dup > 0 && dup > nonDup {
			score = max(score, 100*(dup+1)/(dup+1+nonDup))
		}
	}

	exists, err := d.messages.SpamTextExists(ctx, chatID, env.Text)
	if err != nil {
		d.logger.Warn("spam text lookup failed", "chat", chatID, "err", err)
	} else if exists {
		score = max(score, 100)
	}

	score += d.scoreEntities(ctx, env)
	return score
}

// scoreEntities charges URLs and mentions of strangers. Mentions of users
// already seen in the chat are free.
func (d *Detector) scoreEntities(ctx context.Context, env *gromozeka.Envelope) float64 {
	var score float64
	runes := []rune(env.Text)
	for _, e := range env.Entities {
		switch e.Type {
		case "url", "text_link":
			score += 60
		case "mention":
			mention := entityText(runes, e)
			username := strings.TrimPrefix(mention, "@")
			if username == "" {
				continue
			}
			known, err := d.users.IsKnownMember(ctx, env.Chat.ID, username)
			if err != nil {
				d.logger.Warn("known member lookup failed", "chat", env.Chat.ID, "err", err)
			}
			if known {
				continue
			}
			score += 60
			if strings.HasSuffix(strings.ToLower(username), "bot") {
				score += 40
			}
		}
	}
	return score
}

func entityText(runes []rune, e gromozeka.Entity) string {
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(runes) {
		return ""
	}
	return string(runes[e.Offset : e.Offset+e.Length])
}

// notifyBan announces the ban and schedules the notification's removal.
func (d *Detector) notifyBan(ctx context.Context, env *gromozeka.Envelope, score float64) {
	text := fmt.Sprintf("Spam detected (score %.0f). The sender has been banned.", score)
	noteID, err := d.platform.SendMessage(ctx, env.Chat.ID, text)
	if err != nil {
		d.logger.Warn("ban notification failed", "chat", env.Chat.ID, "err", err)
		return
	}
	if d.delay == nil {
		return
	}
	chatID := env.Chat.ID
	d.delay.After(notificationTTL, func(ctx context.Context) {
		if err := d.platform.DeleteMessage(ctx, chatID, noteID); err != nil {
			d.logger.Debug("notification delete failed", "chat", chatID, "err", err)
		}
	})
}

// MarkSpam carries out the spam-mark action: learn, persist, delete, ban,
// flag. Each step tolerates failures of the previous ones; the action aims
// for a consistent final state rather than atomicity.
func (d *Detector) MarkSpam(ctx context.Context, env *gromozeka.Envelope, reason gromozeka.MarkReason, score float64) error {
	if d.tracer != nil {
		var span gromozeka.Span
		ctx, span = d.tracer.Start(ctx, "detector.mark_spam",
			gromozeka.Int64Attr("chat.id", env.Chat.ID),
			gromozeka.StringAttr("reason", string(reason)))
		defer span.End()
	}

	chatID, userID := env.Chat.ID, env.User.ID

	if admin, err := d.platform.IsAdmin(ctx, chatID, userID); err != nil {
		return fmt.Errorf("admin check: %w", err)
	} else if admin {
		d.alarm(ctx, env, "Refusing to mark a chat admin as a spammer.")
		return fmt.Errorf("target %d administers chat %d", userID, chatID)
	}

	maxMsgs := int64(d.settings.Int(ctx, chatID, gromozeka.KeyAutoSpamMaxMessages))
	allowOld := reason == gromozeka.ReasonAdmin &&
		d.settings.Bool(ctx, chatID, gromozeka.KeyAllowMarkSpamOldUsers)
	if maxMsgs > 0 && !allowOld {
		user, _, err := d.users.GetChatUser(ctx, chatID, userID)
		if err != nil {
			return fmt.Errorf("load chat user: %w", err)
		}
		if user.MessageCount > maxMsgs {
			d.alarm(ctx, env, "This user is established in the chat; not marking as spam.")
			return fmt.Errorf("user %d above message ceiling in chat %d", userID, chatID)
		}
	}

	scope := gromozeka.ChatScope(chatID)
	if env.Text != "" && d.settings.Bool(ctx, chatID, gromozeka.KeyBayesAutoLearn) {
		if err := d.classifier.LearnSpam(ctx, env.Text, scope); err != nil {
			d.logger.Warn("spam learn failed", "chat", chatID, "err", err)
		}
	}

	stored := gromozeka.StoredMessage{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: env.MessageID,
		Text:      env.Text,
		Reason:    reason,
		Score:     score,
		CreatedAt: d.now().Unix(),
	}
	if err := d.messages.AddSpam(ctx, stored); err != nil {
		d.logger.Warn("spam persist failed", "chat", chatID, "err", err)
	}

	if err := d.platform.DeleteMessage(ctx, chatID, env.MessageID); err != nil {
		d.logger.Warn("message delete failed", "chat", chatID, "message", env.MessageID, "err", err)
	}

	if err := d.platform.BanChatMember(ctx, chatID, userID, true); err != nil {
		d.logger.Warn("ban failed", "chat", chatID, "user", userID, "err", err)
	}
	if env.SenderChatID != 0 {
		if err := d.platform.BanChatSenderChat(ctx, chatID, env.SenderChatID); err != nil {
			d.logger.Warn("sender-chat ban failed", "chat", chatID, "err", err)
		}
	}

	if err := d.users.SetSpammer(ctx, chatID, userID, true); err != nil {
		d.logger.Warn("spammer flag failed", "chat", chatID, "user", userID, "err", err)
	}

	if d.settings.Bool(ctx, chatID, gromozeka.KeySpamDeleteAllMessages) {
		recent, err := d.messages.RecentMessages(ctx, chatID, userID, recentWindow)
		if err != nil {
			d.logger.Warn("recent messages failed", "chat", chatID, "err", err)
		} else if len(recent) > 0 {
			ids := make([]int64, 0, len(recent))
			for _, m := range recent {
				ids = append(ids, m.MessageID)
			}
			if err := d.platform.DeleteMessages(ctx, chatID, ids); err != nil {
				d.logger.Warn("bulk delete failed", "chat", chatID, "err", err)
			}
		}
	}

	d.logger.Info("marked as spam",
		"chat", chatID, "user", userID, "message", env.MessageID,
		"reason", reason, "score", score)
	return nil
}

// Unban is the symmetric inverse of MarkSpam: lift the ban, clear the
// spammer flag, migrate the user's spam exemplars to the ham corpus, and
// exempt the user from future checks.
func (d *Detector) Unban(ctx context.Context, chatID, userID int64) error {
	if err := d.platform.UnbanChatMember(ctx, chatID, userID, true); err != nil {
		return fmt.Errorf("platform unban: %w", err)
	}

	if err := d.users.SetSpammer(ctx, chatID, userID, false); err != nil {
		return fmt.Errorf("clear spammer flag: %w", err)
	}

	spam, err := d.messages.SpamByUser(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("load spam entries: %w", err)
	}
	for _, m := range spam {
		m.Reason = gromozeka.ReasonUnban
		if err := d.messages.AddHam(ctx, m); err != nil {
			d.logger.Warn("ham migrate failed", "chat", chatID, "message", m.MessageID, "err", err)
		}
	}
	if err := d.messages.DeleteSpamByUser(ctx, chatID, userID); err != nil {
		return fmt.Errorf("drop spam entries: %w", err)
	}

	if err := d.users.SetUserMeta(ctx, chatID, userID, gromozeka.MetaNotSpammer, "true"); err != nil {
		return fmt.Errorf("set unban flag: %w", err)
	}

	d.logger.Info("unbanned", "chat", chatID, "user", userID, "migrated", len(spam))
	return nil
}

func (d *Detector) alarm(ctx context.Context, env *gromozeka.Envelope, text string) {
	_, err := d.platform.SendMessage(ctx, env.Chat.ID, text,
		gromozeka.WithReplyTo(env.MessageID),
		gromozeka.WithCategory(gromozeka.CategoryBotError))
	if err != nil {
		d.logger.Warn("alarm reply failed", "chat", env.Chat.ID, "err", err)
	}
}
