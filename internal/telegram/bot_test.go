package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/memstore"
	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
	"github.com/digkill/faithtrain/pkg/logger"
)

type fakeSender struct {
	sent  []tgbotapi.MessageConfig
	acked []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acked = append(f.acked, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func newTestBot(t *testing.T) (*Bot, *fakeSender, Services) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	hub := service.NewStateHub()
	log := logger.Discard()

	policy, err := service.NewFeaturePolicy([]service.FeatureRule{{Name: "bible_chat", Limit: 3}})
	if err != nil {
		t.Fatal(err)
	}
	boosters := service.NewBoosterManager(store, clock, hub, log)
	ledger := service.NewPointsLedger(store, boosters, hub, log)
	streaks := service.NewStreakService(store, boosters, clock, time.UTC, service.StreakPolicy{}, hub, log)
	svc := Services{
		Users:       service.NewUserService(store),
		Training:    service.NewTrainingService(store, streaks, ledger, 10, log),
		Streaks:     streaks,
		Ledger:      ledger,
		Catalog:     service.NewCatalogService(store),
		Redemptions: service.NewRedemptionService(store, ledger, clock, hub, log),
		Boosters:    boosters,
		Codes:       service.NewCodeService(store, nil, "FT", clock, hub, log),
		Gate:        service.NewEntitlementGate(store, nil, policy, clock, time.UTC, hub, log),
	}
	sender := &fakeSender{}
	bot := &Bot{sender: sender, log: log, svc: svc, state: NewStateManager()}
	return bot, sender, svc
}

func command(text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: 700, FirstName: "Ruth", UserName: "ruth"},
		Chat:     &tgbotapi.Chat{ID: 700},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func text(body string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: body,
		From: &tgbotapi.User{ID: 700, FirstName: "Ruth"},
		Chat: &tgbotapi.Chat{ID: 700},
	}
}

func TestStartGreets(t *testing.T) {
	bot, sender, _ := newTestBot(t)
	bot.handleMessage(context.Background(), command("/start"))
	if got := sender.last(t).Text; !strings.HasPrefix(got, "Welcome, Ruth!") {
		t.Fatalf("reply = %q", got)
	}
}

func TestCheckinFlow(t *testing.T) {
	ctx := context.Background()
	bot, sender, _ := newTestBot(t)

	bot.handleMessage(ctx, command("/checkin"))
	if sender.last(t).ReplyMarkup == nil {
		t.Fatal("checkin without args should offer a keyboard")
	}

	bot.handleMessage(ctx, command("/checkin reading"))
	if got := sender.last(t).Text; got != "+10 points! Balance 10. Streak: 1." {
		t.Fatalf("reply = %q", got)
	}
	bot.handleMessage(ctx, command("/checkin reading"))
	if got := sender.last(t).Text; got != "Already logged reading today. Streak: 1." {
		t.Fatalf("repeat reply = %q", got)
	}

	bot.handleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 700},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 700}},
		Data:    callbackCheckin + string(models.ActivityPrayer),
	})
	if got := sender.last(t).Text; got != "+10 points! Balance 20. Streak: 1." {
		t.Fatalf("callback reply = %q", got)
	}
	if len(sender.acked) != 1 || sender.acked[0] != "Done" {
		t.Fatalf("acks = %v", sender.acked)
	}

	bot.handleMessage(ctx, command("/balance"))
	if got := sender.last(t).Text; got != "Balance: 20 points" {
		t.Fatalf("balance reply = %q", got)
	}
	bot.handleMessage(ctx, command("/streak"))
	if got := sender.last(t).Text; !strings.HasPrefix(got, "Current streak: 1") {
		t.Fatalf("streak reply = %q", got)
	}
}

func TestRedeemAndBoost(t *testing.T) {
	ctx := context.Background()
	bot, sender, svc := newTestBot(t)
	boost, err := svc.Catalog.Create(ctx, service.CreateRewardInput{
		Title:      "Freeze",
		Cost:       10,
		Category:   models.RewardBooster,
		EffectKind: models.EffectStreakFreeze,
		EffectUses: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(ctx, command("/redeem 1"))
	if got := sender.last(t).Text; got != service.Message(service.ErrInsufficientBalance) {
		t.Fatalf("poor reply = %q", got)
	}

	bot.handleMessage(ctx, command("/checkin worship"))
	bot.handleMessage(ctx, command("/rewards"))
	if got := sender.last(t).Text; !strings.Contains(got, "#1 Freeze - 10 points") {
		t.Fatalf("rewards reply = %q", got)
	}

	bot.handleMessage(ctx, command("/redeem 1"))
	reply := sender.last(t)
	if !strings.HasPrefix(reply.Text, "Redeemed Freeze. Balance 0.") || reply.ReplyMarkup == nil {
		t.Fatalf("redeem reply = %+v", reply)
	}
	user, _, _ := svc.Users.Ensure(ctx, 700, "ruth", "Ruth")
	grants, _ := svc.Redemptions.Grants(ctx, user.ID)
	if len(grants) != 1 || grants[0].RewardID != boost.ID {
		t.Fatalf("grants = %+v", grants)
	}

	bot.handleMessage(ctx, command("/boost "+grants[0].ID))
	if got := sender.last(t).Text; got != "Booster active, 2 uses left." {
		t.Fatalf("boost reply = %q", got)
	}
	bot.handleMessage(ctx, command("/boost "+grants[0].ID))
	if got := sender.last(t).Text; got != service.Message(service.ErrAlreadyActivated) {
		t.Fatalf("second boost reply = %q", got)
	}
}

func TestCodeConversation(t *testing.T) {
	ctx := context.Background()
	bot, sender, _ := newTestBot(t)

	bot.handleMessage(ctx, command("/code"))
	if bot.state.Get(700).State != StateAwaitingCode {
		t.Fatal("bot is not waiting for a code")
	}
	bot.handleMessage(ctx, text("not a code"))
	if got := sender.last(t).Text; got != service.Message(service.ErrInvalidCodeFormat) {
		t.Fatalf("reply = %q", got)
	}
	if bot.state.Get(700).State != StateIdle {
		t.Fatal("state not reset")
	}
	bot.handleMessage(ctx, text("hello"))
	if got := sender.last(t).Text; !strings.Contains(got, "/checkin") {
		t.Fatalf("idle reply = %q", got)
	}
}

func TestAccessCommand(t *testing.T) {
	ctx := context.Background()
	bot, sender, _ := newTestBot(t)
	bot.handleMessage(ctx, command("/access bible_chat"))
	if got := sender.last(t).Text; got != "bible_chat: within_free_limit (0/3 used)" {
		t.Fatalf("reply = %q", got)
	}
	bot.handleMessage(ctx, command("/access"))
	if got := sender.last(t).Text; !strings.HasPrefix(got, "Usage") {
		t.Fatalf("reply = %q", got)
	}
}

func TestUnknownCallback(t *testing.T) {
	bot, sender, _ := newTestBot(t)
	bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}},
		Data:    "weird",
	})
	if len(sender.acked) != 1 || sender.acked[0] != "Unknown choice" {
		t.Fatalf("acks = %v", sender.acked)
	}
}

func TestServeStopsWhenUpdatesClose(t *testing.T) {
	bot, sender, _ := newTestBot(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{Message: command("/start")}
	close(updates)

	done := make(chan error, 1)
	go func() { done <- bot.serve(context.Background(), updates) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve kept running after the channel closed")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	bot, _, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bot.serve(ctx, make(chan tgbotapi.Update)); err != context.Canceled {
		t.Fatalf("serve = %v, want context.Canceled", err)
	}
}
