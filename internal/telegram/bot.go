// Package telegram is a thin chat front: player messages become turn
// submissions, progress turns become status updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"loremaster/internal/export"
	"loremaster/internal/orchestrator"
	"loremaster/internal/transcript"
)

// oocPrefix marks a message as out-of-character table talk.
const oocPrefix = "/ooc "

type Bot struct {
	api  *tgbotapi.BotAPI
	orch *orchestrator.Orchestrator
}

func New(token string, orch *orchestrator.Orchestrator) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return &Bot{api: api, orch: orch}, nil
}

// Start blocks, dispatching updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	log.Printf("telegram front started as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := msg.Text
	switch {
	case text == "/start":
		b.send(msg.Chat.ID, "The table is set. Describe your scene, or ask for a character with \"roll me a character\". Prefix table talk with /ooc.")
		return
	case text == "/reset":
		b.orch.Clear()
		b.send(msg.Chat.ID, "The session has been cleared.")
		return
	case strings.HasPrefix(text, "/export"):
		b.handleExport(msg.Chat.ID, strings.TrimSpace(strings.TrimPrefix(text, "/export")))
		return
	}

	opts := orchestrator.SubmitOptions{InCharacter: true, Knowledge: orchestrator.KnowledgeLore}
	if strings.HasPrefix(text, oocPrefix) {
		text = strings.TrimPrefix(text, oocPrefix)
		opts.InCharacter = false
		opts.Knowledge = orchestrator.KnowledgeNone
	}

	typingStop := b.orch.SubscribeProgress(func(t transcript.Turn) {
		if t.ProgressStatus == transcript.ProgressInProgress {
			b.typing(msg.Chat.ID)
		}
	})

	done, stop, err := b.submitAndWatch(ctx, text, opts)
	if errors.Is(err, orchestrator.ErrTurnInFlight) {
		typingStop()
		b.send(msg.Chat.ID, "One moment, the game master is still narrating.")
		return
	}
	if err != nil {
		typingStop()
		log.Printf("submit failed: %v", err)
		b.send(msg.Chat.ID, "Sorry, something went wrong.")
		return
	}

	go b.awaitReply(msg.Chat.ID, done, func() {
		stop()
		typingStop()
	})
}

// submitAndWatch registers the terminal-status watcher before the turn
// starts, so a turn that fails instantly is still observed. The returned
// channel delivers the terminal status once; stop releases the watcher.
func (b *Bot) submitAndWatch(ctx context.Context, text string, opts orchestrator.SubmitOptions) (<-chan transcript.ProgressStatus, func(), error) {
	done := make(chan transcript.ProgressStatus, 1)
	stop := b.orch.SubscribeProgress(func(t transcript.Turn) {
		if t.ProgressStatus == transcript.ProgressCompleted || t.ProgressStatus == transcript.ProgressFailed {
			select {
			case done <- t.ProgressStatus:
			default:
			}
		}
	})
	if err := b.orch.SubmitAsync(ctx, text, opts); err != nil {
		stop()
		return nil, nil, err
	}
	return done, stop, nil
}

// awaitReply waits for the turn's terminal status, then relays the assistant
// (or error) content.
func (b *Bot) awaitReply(chatID int64, done <-chan transcript.ProgressStatus, cleanup func()) {
	defer cleanup()

	status := <-done
	turns := b.orch.Transcript()
	for i := len(turns) - 1; i >= 0; i-- {
		switch turns[i].Role {
		case transcript.RoleAssistant:
			if status == transcript.ProgressCompleted {
				b.send(chatID, turns[i].Content)
				return
			}
		case transcript.RoleError:
			if status == transcript.ProgressFailed {
				b.send(chatID, turns[i].Content)
				return
			}
		}
	}
}

func (b *Bot) handleExport(chatID int64, format string) {
	if format == "" {
		format = string(export.FormatPlainPairs)
	}
	data, err := export.Encode(export.Format(format), b.orch.Transcript(), b.orch.Ratings())
	if err != nil {
		b.send(chatID, fmt.Sprintf("Export failed: %v", err))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("transcript-%s.json", format),
		Bytes: data,
	})
	if _, err := b.api.Send(doc); err != nil {
		log.Printf("failed to send export: %v", err)
	}
}

func (b *Bot) send(chatID int64, text string) {
	if text == "" {
		text = "..."
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) typing(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		log.Printf("failed to send chat action: %v", err)
	}
}
