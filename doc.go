// Package gromozeka is a chat-room moderation and assistance service for
// Telegram-family group-messaging platforms.
//
// It provides modular, interface-driven building blocks: an adaptive
// Bayesian spam classifier with online learning, a rule-based spam decision
// engine, a TTL- and size-bounded cache layer with pluggable key generation,
// a deterministic HTTP recorder/replayer for golden-data testing, and a
// message pipeline that serializes processing per chat.
//
// # Quick Start
//
//	db := sqlite.New("gromozeka.db")
//	cfg := settings.NewResolver(db)
//	cls := bayes.New(db, bayes.Config{PerChatStats: true})
//	det := detector.New(db, db, cls, platform, cfg)
//
//	pipe := gromozeka.NewPipeline(cfg, gromozeka.WithSpamChecker(det))
//	pipe.Register(gromozeka.Handler{...})
//	pipe.Run(ctx)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Cache] — TTL- and size-bounded key/value store
//   - [BayesStore] — per-chat and global token and class counters
//   - [UserStore], [MessageStore] — chat users, message history, spam/ham corpora
//   - [SettingsStore], [Settings] — per-chat typed configuration
//   - [Platform] — messaging-platform adapter (send, delete, ban, unban)
//   - [Provider] — LLM backend used for oversize-page condensation
//   - [Tracer] — span creation for pipeline and classifier operations
//
// # Included Implementations
//
// Storage: store/sqlite (local), store/postgres (pgx). Caching: cache
// (in-memory and null variants plus key generators and value codecs).
// HTTP capture: httprec (recorder, replayer, secret masking). Clients:
// webfetch, search, weather. LLM: provider/openaicompat, provider/gemini,
// composed through provider/resolve.
//
// See cmd/gromozeka for the bot binary and cmd/collector for the
// golden-data collection tool.
package gromozeka
