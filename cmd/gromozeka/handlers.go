package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/detector"
	"github.com/NotA-Company/gromozeka-sub003/frontend/telegram"
	"github.com/NotA-Company/gromozeka-sub003/search"
	"github.com/NotA-Company/gromozeka-sub003/settings"
	"github.com/NotA-Company/gromozeka-sub003/weather"
	"github.com/NotA-Company/gromozeka-sub003/webfetch"
)

type handlerDeps struct {
	platform   *telegram.Bot
	detector   *detector.Detector
	settings   *settings.Resolver
	fetcher    *webfetch.Fetcher
	searcher   *search.Client
	forecaster *weather.Client
	logger     *slog.Logger
}

func registerHandlers(pipe *gromozeka.Pipeline, d handlerDeps) {
	pipe.Register(gromozeka.Handler{
		Meta: gromozeka.HandlerMeta{
			Name:        "help",
			Commands:    []string{"help", "start"},
			Description: "list available commands",
			Order:       10,
		},
		Match: gromozeka.CommandMatch("help", "start"),
		Fn:    helpHandler(pipe, d),
	})
	pipe.Register(gromozeka.Handler{
		Meta: gromozeka.HandlerMeta{
			Name:        "settings",
			Commands:    []string{"settings", "set"},
			Description: "show and change chat settings (admins)",
			Help:        "/settings shows the menu; /set <key> <value> writes one setting",
			Order:       20,
		},
		Match: gromozeka.CommandMatch("settings", "set"),
		Fn:    settingsHandler(d),
	})
	pipe.Register(gromozeka.Handler{
		Meta: gromozeka.HandlerMeta{
			Name:        "spam",
			Commands:    []string{"spam"},
			Description: "mark the replied-to message as spam",
			Help:        "reply to a spam message with /spam",
			Order:       30,
		},
		Match: gromozeka.CommandMatch("spam"),
		Fn:    spamHandler(d),
	})
	pipe.Register(gromozeka.Handler{
		Meta: gromozeka.HandlerMeta{
			Name:        "unban",
			Commands:    []string{"unban"},
			Description: "lift a spam ban (admins)",
			Help:        "/unban <user id>, or reply to a message from the user",
			Order:       40,
		},
		Match: gromozeka.CommandMatch("unban"),
		Fn:    unbanHandler(d),
	})
	if d.forecaster != nil {
		pipe.Register(gromozeka.Handler{
			Meta: gromozeka.HandlerMeta{
				Name:        "weather",
				Commands:    []string{"weather"},
				Description: "current weather and forecast for a place",
				Help:        "/weather <city>",
				Order:       50,
			},
			Match: gromozeka.CommandMatch("weather"),
			Fn:    weatherHandler(d),
		})
	}
	if d.searcher != nil {
		pipe.Register(gromozeka.Handler{
			Meta: gromozeka.HandlerMeta{
				Name:        "search",
				Commands:    []string{"search"},
				Description: "web search",
				Help:        "/search <query>",
				Order:       60,
			},
			Match: gromozeka.CommandMatch("search"),
			Fn:    searchHandler(d),
		})
	}
	pipe.Register(gromozeka.Handler{
		Meta: gromozeka.HandlerMeta{
			Name:        "fetch",
			Description: "fetch and condense linked pages in private chats",
			Order:       70,
		},
		Match: matchPrivateURL,
		Fn:    fetchHandler(d),
	})
}

// commandArgs strips the leading /command (with optional @botname) and
// returns the rest of the message.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}

func helpHandler(pipe *gromozeka.Pipeline, d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		var b strings.Builder
		b.WriteString("**Commands**\n")
		for _, m := range pipe.Handlers() {
			if len(m.Commands) == 0 {
				continue
			}
			fmt.Fprintf(&b, "/%s — %s\n", m.Commands[0], m.Description)
			if m.Help != "" {
				fmt.Fprintf(&b, "    %s\n", m.Help)
			}
		}
		_, err := d.platform.SendMessage(ctx, env.Chat.ID, b.String(),
			gromozeka.WithReplyTo(env.MessageID))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
}

func settingsHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		allowed, err := canChangeSettings(ctx, d, env.Chat.ID, env.User.ID)
		if err != nil {
			return gromozeka.Errored, err
		}
		if !allowed {
			_, err := d.platform.SendMessage(ctx, env.Chat.ID,
				"Settings can only be changed by chat administrators.",
				gromozeka.WithReplyTo(env.MessageID))
			if err != nil {
				return gromozeka.Errored, err
			}
			return gromozeka.Final, nil
		}

		if strings.HasPrefix(strings.TrimSpace(env.Text), "/set") &&
			!strings.HasPrefix(strings.TrimSpace(env.Text), "/settings") {
			return setCommand(ctx, d, env)
		}

		text, buttons := settingsMenu(ctx, d.settings, env.Chat.ID)
		_, err = d.platform.SendMessage(ctx, env.Chat.ID, text,
			gromozeka.WithButtons(buttons))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
}

func setCommand(ctx context.Context, d handlerDeps, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
	args := strings.Fields(commandArgs(env.Text))
	if len(args) < 2 {
		_, err := d.platform.SendMessage(ctx, env.Chat.ID,
			"Usage: /set <key> <value>", gromozeka.WithReplyTo(env.MessageID))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
	key, value := args[0], strings.Join(args[1:], " ")
	reply := fmt.Sprintf("`%s` is now `%s`", key, value)
	if err := d.settings.Set(ctx, env.Chat.ID, key, value); err != nil {
		reply = fmt.Sprintf("Cannot set `%s`: %v", key, err)
	}
	if _, err := d.platform.SendMessage(ctx, env.Chat.ID, reply,
		gromozeka.WithReplyTo(env.MessageID)); err != nil {
		return gromozeka.Errored, err
	}
	return gromozeka.Final, nil
}

// canChangeSettings gates the settings surface: the chat must allow admin
// changes and the caller must actually be an admin. Private chats are
// always the user's own.
func canChangeSettings(ctx context.Context, d handlerDeps, chatID, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}
	if !d.settings.Bool(ctx, chatID, gromozeka.KeyAdminCanChangeSettings) {
		return false, nil
	}
	return d.platform.IsAdmin(ctx, chatID, userID)
}

func spamHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		if env.ReplyToID == 0 || env.ReplyUser.ID == 0 {
			_, err := d.platform.SendMessage(ctx, env.Chat.ID,
				"Reply to the spam message with /spam.",
				gromozeka.WithReplyTo(env.MessageID))
			if err != nil {
				return gromozeka.Errored, err
			}
			return gromozeka.Final, nil
		}

		isAdmin, err := d.platform.IsAdmin(ctx, env.Chat.ID, env.User.ID)
		if err != nil {
			return gromozeka.Errored, err
		}
		reason := gromozeka.ReasonAdmin
		if !isAdmin {
			if !d.settings.Bool(ctx, env.Chat.ID, gromozeka.KeyAllowUserSpamCommand) {
				return gromozeka.Final, nil
			}
			reason = gromozeka.ReasonUser
		}

		target := &gromozeka.Envelope{
			User:      env.ReplyUser,
			Chat:      env.Chat,
			MessageID: env.ReplyToID,
			Text:      env.ReplyText,
			Type:      gromozeka.TextMessage,
		}
		if err := d.detector.MarkSpam(ctx, target, reason, 100); err != nil {
			d.logger.Warn("mark spam failed", "chat", env.Chat.ID, "err", err)
			return gromozeka.Errored, err
		}
		// The /spam command itself is noise once acted on.
		if err := d.platform.DeleteMessage(ctx, env.Chat.ID, env.MessageID); err != nil {
			d.logger.Debug("command cleanup failed", "err", err)
		}
		return gromozeka.Final, nil
	}
}

func unbanHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		isAdmin, err := d.platform.IsAdmin(ctx, env.Chat.ID, env.User.ID)
		if err != nil {
			return gromozeka.Errored, err
		}
		if !isAdmin {
			return gromozeka.Final, nil
		}

		userID := env.ReplyUser.ID
		if arg := commandArgs(env.Text); arg != "" {
			userID, err = strconv.ParseInt(arg, 10, 64)
			if err != nil {
				_, serr := d.platform.SendMessage(ctx, env.Chat.ID,
					"Usage: /unban <user id>, or reply to the user's message.",
					gromozeka.WithReplyTo(env.MessageID))
				if serr != nil {
					return gromozeka.Errored, serr
				}
				return gromozeka.Final, nil
			}
		}
		if userID == 0 {
			_, err := d.platform.SendMessage(ctx, env.Chat.ID,
				"Usage: /unban <user id>, or reply to the user's message.",
				gromozeka.WithReplyTo(env.MessageID))
			if err != nil {
				return gromozeka.Errored, err
			}
			return gromozeka.Final, nil
		}

		if err := d.detector.Unban(ctx, env.Chat.ID, userID); err != nil {
			return gromozeka.Errored, err
		}
		_, err = d.platform.SendMessage(ctx, env.Chat.ID,
			fmt.Sprintf("User %d is unbanned and excluded from future spam checks.", userID),
			gromozeka.WithReplyTo(env.MessageID))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
}

func weatherHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		location := commandArgs(env.Text)
		if location == "" {
			_, err := d.platform.SendMessage(ctx, env.Chat.ID, "Usage: /weather <city>",
				gromozeka.WithReplyTo(env.MessageID))
			if err != nil {
				return gromozeka.Errored, err
			}
			return gromozeka.Final, nil
		}
		report, err := d.forecaster.Report(ctx, location)
		if err != nil {
			_, serr := d.platform.SendMessage(ctx, env.Chat.ID,
				fmt.Sprintf("No weather for %q.", location),
				gromozeka.WithReplyTo(env.MessageID))
			if serr != nil {
				return gromozeka.Errored, serr
			}
			return gromozeka.Errored, err
		}
		_, err = d.platform.SendMessage(ctx, env.Chat.ID, formatReport(report),
			gromozeka.WithReplyTo(env.MessageID))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
}

func formatReport(r weather.Report) string {
	var b strings.Builder
	place := r.Place.Name
	if r.Place.Country != "" {
		place += ", " + r.Place.Country
	}
	fmt.Fprintf(&b, "**%s**\n", place)
	fmt.Fprintf(&b, "%s, %.1f°C (feels like %.1f°C), humidity %d%%, wind %.1f m/s\n",
		r.Current.Description, r.Current.Temp, r.Current.FeelsLike,
		r.Current.Humidity, r.Current.WindSpeed)
	for _, day := range r.Daily {
		fmt.Fprintf(&b, "%s: %.0f…%.0f°C, %s\n",
			day.Date, day.TempMin, day.TempMax, day.Description)
	}
	return b.String()
}

func searchHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		query := commandArgs(env.Text)
		if query == "" {
			_, err := d.platform.SendMessage(ctx, env.Chat.ID, "Usage: /search <query>",
				gromozeka.WithReplyTo(env.MessageID))
			if err != nil {
				return gromozeka.Errored, err
			}
			return gromozeka.Final, nil
		}
		resp, err := d.searcher.Search(ctx, query)
		if err != nil {
			return gromozeka.Errored, err
		}
		for _, fragment := range search.Format(resp) {
			if _, err := d.platform.SendMessage(ctx, env.Chat.ID, fragment); err != nil {
				return gromozeka.Errored, err
			}
		}
		return gromozeka.Final, nil
	}
}

// matchPrivateURL selects private-chat messages carrying a URL entity.
func matchPrivateURL(env *gromozeka.Envelope) bool {
	if !env.Chat.IsPrivate() || env.Type != gromozeka.TextMessage {
		return false
	}
	for _, e := range env.Entities {
		if e.Type == "url" || e.Type == "text_link" {
			return true
		}
	}
	return false
}

func fetchHandler(d handlerDeps) gromozeka.HandlerFunc {
	return func(ctx context.Context, env *gromozeka.Envelope) (gromozeka.Verdict, error) {
		url := firstURL(env)
		if url == "" {
			return gromozeka.Skipped, nil
		}
		content, err := d.fetcher.Content(ctx, url, env.Chat.ID, webfetch.DefaultContentConfig())
		if err != nil {
			_, serr := d.platform.SendMessage(ctx, env.Chat.ID,
				fmt.Sprintf("Cannot fetch %s: %v", url, err),
				gromozeka.WithReplyTo(env.MessageID), gromozeka.WithCategory(gromozeka.CategoryBotError))
			if serr != nil {
				return gromozeka.Errored, serr
			}
			return gromozeka.Errored, err
		}
		_, err = d.platform.SendMessage(ctx, env.Chat.ID, content,
			gromozeka.WithReplyTo(env.MessageID))
		if err != nil {
			return gromozeka.Errored, err
		}
		return gromozeka.Final, nil
	}
}

// firstURL extracts the first linked URL from the message entities.
func firstURL(env *gromozeka.Envelope) string {
	runes := []rune(env.Text)
	for _, e := range env.Entities {
		switch e.Type {
		case "text_link":
			if e.URL != "" {
				return e.URL
			}
		case "url":
			if e.Offset >= 0 && e.Offset+e.Length <= len(runes) {
				return string(runes[e.Offset : e.Offset+e.Length])
			}
		}
	}
	return ""
}
