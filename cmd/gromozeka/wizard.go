package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/frontend/telegram"
	"github.com/NotA-Company/gromozeka-sub003/settings"
)

// Wizard actions carried in callback payloads.
const (
	actionToggle = "t"
	actionReset  = "r"
	actionInfo   = "i"
)

// callbackPayload is the compact state carried through an inline button.
// Telegram caps callback data at 64 bytes, so keys travel as an index into
// the sorted definition list rather than by name.
type callbackPayload struct {
	Action string `json:"a"`
	ChatID int64  `json:"c"`
	Key    int    `json:"k"`
}

// wizard drives the inline settings menu from callback queries.
type wizard struct {
	bot      *telegram.Bot
	settings *settings.Resolver
	logger   *slog.Logger
}

func newWizard(bot *telegram.Bot, resolver *settings.Resolver, logger *slog.Logger) *wizard {
	return &wizard{bot: bot, settings: resolver, logger: logger}
}

// sortedDefinitions returns all setting definitions in stable key order so
// payload indexes stay meaningful across processes.
func sortedDefinitions() []settings.Definition {
	defs := settings.All()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

// settingsMenu renders the settings overview plus one button row per key.
// Bool settings toggle in place; the rest show their description and are
// written with /set.
func settingsMenu(ctx context.Context, resolver *settings.Resolver, chatID int64) (string, [][]gromozeka.Button) {
	defs := sortedDefinitions()

	var b strings.Builder
	b.WriteString("**Chat settings**\n")
	buttons := make([][]gromozeka.Button, 0, len(defs))
	for i, def := range defs {
		value := resolver.String(ctx, chatID, def.Key)
		fmt.Fprintf(&b, "`%s` = `%s` — %s\n", def.Key, value, def.Label)

		row := []gromozeka.Button{}
		if def.Type == settings.TypeBool {
			row = append(row, gromozeka.Button{
				Text:    def.Label + ": " + value,
				Payload: encodePayload(callbackPayload{Action: actionToggle, ChatID: chatID, Key: i}),
			})
		} else {
			row = append(row, gromozeka.Button{
				Text:    def.Label,
				Payload: encodePayload(callbackPayload{Action: actionInfo, ChatID: chatID, Key: i}),
			})
		}
		row = append(row, gromozeka.Button{
			Text:    "reset",
			Payload: encodePayload(callbackPayload{Action: actionReset, ChatID: chatID, Key: i}),
		})
		buttons = append(buttons, row)
	}
	b.WriteString("\nUse /set <key> <value> for non-boolean settings.")
	return b.String(), buttons
}

func encodePayload(p callbackPayload) string {
	data, _ := json.Marshal(p)
	return string(data)
}

// Handle processes one settings callback: permission check, the requested
// change, then an in-place refresh of the menu message.
func (w *wizard) Handle(ctx context.Context, cb *telegram.CallbackQuery) {
	var p callbackPayload
	if err := json.Unmarshal([]byte(cb.Data), &p); err != nil {
		w.answer(ctx, cb.ID, "")
		return
	}
	defs := sortedDefinitions()
	if p.Key < 0 || p.Key >= len(defs) {
		w.answer(ctx, cb.ID, "")
		return
	}
	def := defs[p.Key]

	allowed := p.ChatID == cb.From.ID
	if !allowed && w.settings.Bool(ctx, p.ChatID, gromozeka.KeyAdminCanChangeSettings) {
		isAdmin, err := w.bot.IsAdmin(ctx, p.ChatID, cb.From.ID)
		if err != nil {
			w.logger.Warn("admin check failed", "chat", p.ChatID, "err", err)
		}
		allowed = isAdmin
	}
	if !allowed {
		w.answer(ctx, cb.ID, "Only chat administrators can change settings.")
		return
	}

	switch p.Action {
	case actionToggle:
		if def.Type != settings.TypeBool {
			w.answer(ctx, cb.ID, def.Description)
			return
		}
		next := strconv.FormatBool(!w.settings.Bool(ctx, p.ChatID, def.Key))
		if err := w.settings.Set(ctx, p.ChatID, def.Key, next); err != nil {
			w.answer(ctx, cb.ID, fmt.Sprintf("Cannot change %s: %v", def.Key, err))
			return
		}
		w.answer(ctx, cb.ID, def.Label+": "+next)
	case actionReset:
		if err := w.settings.Reset(ctx, p.ChatID, def.Key); err != nil {
			w.answer(ctx, cb.ID, fmt.Sprintf("Cannot reset %s: %v", def.Key, err))
			return
		}
		w.answer(ctx, cb.ID, def.Label+" reset to default")
	case actionInfo:
		w.answer(ctx, cb.ID, def.Description+" (set with /set "+def.Key+" <value>)")
		return
	default:
		w.answer(ctx, cb.ID, "")
		return
	}

	if cb.Message != nil {
		text, _ := settingsMenu(ctx, w.settings, p.ChatID)
		if err := w.bot.EditMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text); err != nil {
			w.logger.Debug("menu refresh failed", "err", err)
		}
	}
}

func (w *wizard) answer(ctx context.Context, callbackID, text string) {
	if err := w.bot.AnswerCallback(ctx, callbackID, text); err != nil {
		w.logger.Debug("callback answer failed", "err", err)
	}
}
