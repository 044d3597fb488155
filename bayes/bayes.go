// Package bayes implements the adaptive multinomial naive-Bayes spam
// classifier with Laplace smoothing and online learning over a
// gromozeka.BayesStore.
package bayes

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/tokenize"
)

// Config tunes the classifier. Zero fields fall back to the documented
// defaults.
type Config struct {
	// Alpha is the Laplace smoothing constant (default 1.0).
	Alpha float64
	// MinTokenCount is the total count a token needs before it
	// participates in classification (default 2).
	MinTokenCount int64
	// MinConfidence gates the spam verdict (default 0.1).
	MinConfidence float64
	// DefaultThreshold is the spam cutoff on the 0..100 scale (default 50).
	DefaultThreshold float64
	// PerChatStats keeps a separate corpus per chat; otherwise all
	// learning and classification use the global scope.
	PerChatStats bool
	// MaxTokensPerMessage truncates the token stream (default 1000).
	MaxTokensPerMessage int
	// Tokenizer overrides the tokenizer configuration.
	Tokenizer *tokenize.Config
}

func (c Config) withDefaults() Config {
	if c.Alpha == 0 {
		c.Alpha = 1.0
	}
	if c.MinTokenCount == 0 {
		c.MinTokenCount = 2
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.1
	}
	if c.DefaultThreshold == 0 {
		c.DefaultThreshold = 50.0
	}
	if c.MaxTokensPerMessage == 0 {
		c.MaxTokensPerMessage = 1000
	}
	if c.Tokenizer == nil {
		t := tokenize.DefaultConfig()
		c.Tokenizer = &t
	}
	return c
}

// Result is one classification outcome.
type Result struct {
	// Score is 100·P(spam | text).
	Score float64
	// IsSpam holds when Score passes the threshold and Confidence passes
	// MinConfidence.
	IsSpam bool
	// Confidence estimates how much of the message the model has seen
	// before, in [0, 1].
	Confidence float64
	// TokenScores maps each participating token to its log-likelihood
	// contribution toward spam (positive pushes spammy).
	TokenScores map[string]float64
}

// Sample is one element of a training batch.
type Sample struct {
	Text  string
	Spam  bool
	Scope gromozeka.Scope
}

// BatchResult summarizes a BatchLearn run.
type BatchResult struct {
	Total       int
	Success     int
	Failed      int
	SpamLearned int
	HamLearned  int
}

// Classifier scores message text against per-scope token statistics.
type Classifier struct {
	store  gromozeka.BayesStore
	cfg    Config
	logger *slog.Logger
	tracer gromozeka.Tracer
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithTracer enables span creation around classification and learning.
func WithTracer(t gromozeka.Tracer) Option {
	return func(c *Classifier) { c.tracer = t }
}

// New creates a Classifier over store.
func New(store gromozeka.BayesStore, cfg Config, opts ...Option) *Classifier {
	c := &Classifier{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// scopeFor maps the requested scope through the per-chat setting: with
// per-chat stats disabled, everything trains and classifies globally.
func (c *Classifier) scopeFor(scope gromozeka.Scope) gromozeka.Scope {
	if !c.cfg.PerChatStats {
		return gromozeka.Global
	}
	return scope
}

// Classify scores text within scope. A non-positive threshold selects the
// configured default. Priors are deliberately flat (0.5/0.5): the
// unbalanced training-set bias is corrected at learning time, not at
// classification time.
func (c *Classifier) Classify(ctx context.Context, text string, scope gromozeka.Scope, threshold float64) (Result, error) {
	if c.tracer != nil {
		var span gromozeka.Span
		ctx, span = c.tracer.Start(ctx, "bayes.classify",
			gromozeka.Int64Attr("scope.chat", scope.ChatID))
		defer span.End()
	}
	if threshold <= 0 {
		threshold = c.cfg.DefaultThreshold
	}
	scope = c.scopeFor(scope)

	tokens := tokenize.Tokenize(text, *c.cfg.Tokenizer)
	if len(tokens) > c.cfg.MaxTokensPerMessage {
		tokens = tokens[:c.cfg.MaxTokensPerMessage]
	}

	// Raw in-message frequency per token; classification iterates the
	// deduplicated set but weights by this count.
	freq := make(map[string]int64, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	spamStats, err := c.store.GetClassStats(ctx, true, scope)
	if err != nil {
		return Result{}, fmt.Errorf("load spam class stats: %w", err)
	}
	hamStats, err := c.store.GetClassStats(ctx, false, scope)
	if err != nil {
		return Result{}, fmt.Errorf("load ham class stats: %w", err)
	}

	trainingMsgs := spamStats.Messages + hamStats.Messages
	if trainingMsgs == 0 {
		return Result{Score: 50, IsSpam: false, Confidence: 0}, nil
	}

	vocab, err := c.store.VocabularySize(ctx, scope)
	if err != nil {
		return Result{}, fmt.Errorf("load vocabulary size: %w", err)
	}

	logSpam := math.Log(0.5)
	logHam := math.Log(0.5)
	contrib := make(map[string]float64)
	var knownTokens int

	for tok, n := range freq {
		stats, ok, err := c.store.GetTokenStats(ctx, tok, scope)
		if err != nil {
			return Result{}, fmt.Errorf("load token stats: %w", err)
		}
		if !ok || stats.Total < c.cfg.MinTokenCount {
			continue
		}
		knownTokens++

		pSpam := (float64(stats.Spam) + c.cfg.Alpha) /
			(float64(spamStats.Tokens) + c.cfg.Alpha*float64(vocab))
		pHam := (float64(stats.Ham) + c.cfg.Alpha) /
			(float64(hamStats.Tokens) + c.cfg.Alpha*float64(vocab))

		w := float64(n)
		logSpam += w * math.Log(pSpam)
		logHam += w * math.Log(pHam)
		contrib[tok] = w * (math.Log(pSpam) - math.Log(pHam))
	}

	// Normalize via log-sum-exp to keep the probabilities finite.
	maxLog := math.Max(logSpam, logHam)
	pSpam := math.Exp(logSpam - maxLog)
	pHam := math.Exp(logHam - maxLog)
	score := 100 * pSpam / (pSpam + pHam)

	var confidence float64
	if len(freq) > 0 {
		confidence = 0.7*float64(knownTokens)/float64(len(freq)) +
			0.3*math.Min(1, float64(trainingMsgs)/100)
	}

	return Result{
		Score:       score,
		IsSpam:      score >= threshold && confidence >= c.cfg.MinConfidence,
		Confidence:  confidence,
		TokenScores: contrib,
	}, nil
}

// LearnSpam trains text as a spam exemplar within scope.
func (c *Classifier) LearnSpam(ctx context.Context, text string, scope gromozeka.Scope) error {
	return c.learn(ctx, text, true, scope)
}

// LearnHam trains text as a ham exemplar within scope.
func (c *Classifier) LearnHam(ctx context.Context, text string, scope gromozeka.Scope) error {
	return c.learn(ctx, text, false, scope)
}

func (c *Classifier) learn(ctx context.Context, text string, spam bool, scope gromozeka.Scope) error {
	scope = c.scopeFor(scope)

	tokens := tokenize.Tokenize(text, *c.cfg.Tokenizer)
	if len(tokens) == 0 {
		return fmt.Errorf("nothing to learn from %q", text)
	}
	if len(tokens) > c.cfg.MaxTokensPerMessage {
		tokens = tokens[:c.cfg.MaxTokensPerMessage]
	}

	if err := c.store.UpdateClassStats(ctx, spam, 1, int64(len(tokens)), scope); err != nil {
		return fmt.Errorf("update class stats: %w", err)
	}

	counts := make(map[string]int64, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	updates := make([]gromozeka.TokenUpdate, 0, len(order))
	for _, tok := range order {
		updates = append(updates, gromozeka.TokenUpdate{Token: tok, Spam: spam, Inc: counts[tok]})
	}
	if err := c.store.BatchUpdateTokens(ctx, updates, scope); err != nil {
		return fmt.Errorf("batch token update: %w", err)
	}

	c.logger.Debug("learned message",
		"spam", spam, "tokens", len(tokens), "unique", len(order), "chat", scope.ChatID)
	return nil
}

// BatchLearn trains a whole corpus, reporting progress after each sample.
// Individual failures are counted, not fatal.
func (c *Classifier) BatchLearn(ctx context.Context, samples []Sample, onProgress func(done, total int)) (BatchResult, error) {
	res := BatchResult{Total: len(samples)}
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := c.learn(ctx, s.Text, s.Spam, s.Scope)
		if err != nil {
			res.Failed++
			c.logger.Warn("batch learn sample failed", "index", i, "err", err)
		} else {
			res.Success++
			if s.Spam {
				res.SpamLearned++
			} else {
				res.HamLearned++
			}
		}
		if onProgress != nil {
			onProgress(i+1, res.Total)
		}
	}
	return res, nil
}

// Reset drops the trained model for scope.
func (c *Classifier) Reset(ctx context.Context, scope gromozeka.Scope) error {
	return c.store.ClearStats(ctx, c.scopeFor(scope))
}

// ResetAll drops every scope's model.
func (c *Classifier) ResetAll(ctx context.Context) error {
	return c.store.ClearAllStats(ctx)
}

// CleanupRareTokens prunes tokens below minCount within scope.
func (c *Classifier) CleanupRareTokens(ctx context.Context, minCount int64, scope gromozeka.Scope) (int64, error) {
	return c.store.CleanupRareTokens(ctx, minCount, c.scopeFor(scope))
}
