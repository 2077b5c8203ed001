package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

const (
	callbackCheckin = "checkin:"
	callbackRedeem  = "redeem:"
	callbackBoost   = "boost:"
)

// Sender is the part of *tgbotapi.BotAPI used to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Services struct {
	Users       *service.UserService
	Training    *service.TrainingService
	Streaks     *service.StreakService
	Ledger      *service.PointsLedger
	Catalog     *service.CatalogService
	Redemptions *service.RedemptionService
	Boosters    *service.BoosterManager
	Codes       *service.CodeService
	Gate        *service.EntitlementGate
}

type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	log    *slog.Logger
	svc    Services
	state  *StateManager
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger, svc Services) *Bot {
	return &Bot{
		api:    api,
		sender: api,
		log:    log,
		svc:    svc,
		state:  NewStateManager(),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")
	err := b.serve(ctx, updates)
	if ctx.Err() != nil {
		b.api.StopReceivingUpdates()
	}
	return err
}

// serve dispatches updates until ctx ends or the channel is closed.
func (b *Bot) serve(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.log.Warn("telegram updates channel closed")
				return nil
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	switch session.State {
	case StateAwaitingCode:
		b.state.Reset(msg.Chat.ID)
		b.redeemCode(ctx, msg.From, msg.Chat.ID, msg.Text)
	default:
		b.sendText(msg.Chat.ID, "Send /checkin to log today's training.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		user, _, err := b.ensureUser(ctx, msg.From, chatID)
		if err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		text := fmt.Sprintf(
			"Welcome, %s!\n\nCommands:\n/checkin <reading|prayer|worship> - log a session\n/streak - current streak\n/balance - points balance\n/rewards - reward catalog\n/redeem <id> - redeem a reward\n/equip <grant> - equip a cosmetic\n/boost <grant> - activate a booster\n/code <FT-XXXXXX> - apply a redemption code\n/access <feature> - check feature access",
			user.FirstName,
		)
		b.sendText(chatID, text)
	case "checkin":
		if args == "" {
			b.promptActivity(chatID)
			return
		}
		b.checkin(ctx, msg.From, chatID, models.ActivityKind(strings.ToLower(args)))
	case "streak":
		b.handleStreak(ctx, msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "rewards":
		b.handleRewards(ctx, chatID)
	case "redeem":
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			b.sendText(chatID, "Usage: /redeem <reward id>")
			return
		}
		b.redeem(ctx, msg.From, chatID, id)
	case "equip":
		b.handleEquip(ctx, msg, args)
	case "boost":
		if args == "" {
			b.sendText(chatID, "Usage: /boost <grant id>")
			return
		}
		b.boost(ctx, msg.From, chatID, args)
	case "code":
		if args == "" {
			b.state.Set(chatID, &Session{State: StateAwaitingCode})
			b.sendText(chatID, "Send your redemption code.")
			return
		}
		b.redeemCode(ctx, msg.From, chatID, args)
	case "access":
		b.handleAccess(ctx, msg, args)
	default:
		b.sendText(chatID, "Unknown command. Try /start.")
	}
}

func (b *Bot) promptActivity(chatID int64) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Reading", callbackCheckin+string(models.ActivityReading)),
		tgbotapi.NewInlineKeyboardButtonData("Prayer", callbackCheckin+string(models.ActivityPrayer)),
		tgbotapi.NewInlineKeyboardButtonData("Worship", callbackCheckin+string(models.ActivityWorship)),
	))
	msg := tgbotapi.NewMessage(chatID, "What did you complete today?")
	msg.ReplyMarkup = keyboard
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	ack := "Done"
	switch {
	case strings.HasPrefix(cb.Data, callbackCheckin):
		b.checkin(ctx, cb.From, chatID, models.ActivityKind(strings.TrimPrefix(cb.Data, callbackCheckin)))
	case strings.HasPrefix(cb.Data, callbackRedeem):
		id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, callbackRedeem), 10, 64)
		if err != nil {
			ack = "Unknown choice"
			break
		}
		b.redeem(ctx, cb.From, chatID, id)
	case strings.HasPrefix(cb.Data, callbackBoost):
		b.boost(ctx, cb.From, chatID, strings.TrimPrefix(cb.Data, callbackBoost))
	default:
		ack = "Unknown choice"
	}
	if _, err := b.sender.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) checkin(ctx context.Context, from *tgbotapi.User, chatID int64, kind models.ActivityKind) {
	user, ok := b.user(ctx, from, chatID)
	if !ok {
		return
	}
	res, err := b.svc.Training.Complete(ctx, user.ID, kind)
	if err != nil {
		b.replyError(chatID, "checkin", err)
		return
	}
	var text string
	switch {
	case !res.Recorded:
		text = fmt.Sprintf("Already logged %s today. Streak: %d.", kind, res.Streak.CurrentStreak)
	case res.Multiplier > 1:
		text = fmt.Sprintf("+%d points (x%d boost)! Balance %d. Streak: %d.", res.Credited, res.Multiplier, res.Balance, res.Streak.CurrentStreak)
	default:
		text = fmt.Sprintf("+%d points! Balance %d. Streak: %d.", res.Credited, res.Balance, res.Streak.CurrentStreak)
	}
	b.sendText(chatID, text)
}

func (b *Bot) handleStreak(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.user(ctx, msg.From, msg.Chat.ID)
	if !ok {
		return
	}
	st, err := b.svc.Streaks.Refresh(ctx, user.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, "streak", err)
		return
	}
	tokens, err := b.svc.Boosters.FreezeTokens(ctx, user.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, "freeze tokens", err)
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Current streak: %d\nLongest: %d\nFreeze tokens: %d", st.CurrentStreak, st.LongestStreak, tokens))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, ok := b.user(ctx, msg.From, msg.Chat.ID)
	if !ok {
		return
	}
	balance, err := b.svc.Ledger.Balance(ctx, user.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, "balance", err)
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Balance: %d points", balance))
}

func (b *Bot) handleRewards(ctx context.Context, chatID int64) {
	rewards, err := b.svc.Catalog.List(ctx, true)
	if err != nil {
		b.replyError(chatID, "list rewards", err)
		return
	}
	if len(rewards) == 0 {
		b.sendText(chatID, "No rewards available right now.")
		return
	}
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, rw := range rewards {
		fmt.Fprintf(&sb, "#%d %s - %d points", rw.ID, rw.Title, rw.Cost)
		if rw.PremiumOnly {
			sb.WriteString(" (premium)")
		}
		if rw.StockExhausted() {
			sb.WriteString(" (sold out)")
		}
		sb.WriteString("\n")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Redeem "+rw.Title, callbackRedeem+strconv.FormatInt(rw.ID, 10)),
		))
	}
	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send rewards", "err", err)
	}
}

func (b *Bot) redeem(ctx context.Context, from *tgbotapi.User, chatID, rewardID int64) {
	user, ok := b.user(ctx, from, chatID)
	if !ok {
		return
	}
	res, err := b.svc.Redemptions.Redeem(ctx, user.ID, rewardID)
	if err != nil {
		b.replyError(chatID, "redeem", err)
		return
	}
	text := fmt.Sprintf("Redeemed %s. Balance %d.\nGrant: %s", res.Reward.Title, res.Balance, res.Grant.ID)
	msg := tgbotapi.NewMessage(chatID, text)
	if res.Reward.Category == models.RewardBooster {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Activate now", callbackBoost+res.Grant.ID),
		))
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send redeem", "err", err)
	}
}

func (b *Bot) handleEquip(ctx context.Context, msg *tgbotapi.Message, grantID string) {
	if grantID == "" {
		b.sendText(msg.Chat.ID, "Usage: /equip <grant id>")
		return
	}
	user, ok := b.user(ctx, msg.From, msg.Chat.ID)
	if !ok {
		return
	}
	grant, err := b.svc.Redemptions.Equip(ctx, user.ID, grantID, true)
	if err != nil {
		b.replyError(msg.Chat.ID, "equip", err)
		return
	}
	b.sendText(msg.Chat.ID, "Equipped "+grant.ID+".")
}

func (b *Bot) boost(ctx context.Context, from *tgbotapi.User, chatID int64, grantID string) {
	user, ok := b.user(ctx, from, chatID)
	if !ok {
		return
	}
	res, err := b.svc.Boosters.ActivateGrant(ctx, user.ID, grantID)
	if err != nil {
		b.replyError(chatID, "boost", err)
		return
	}
	text := "Booster activated."
	if res.ExpiresAt != nil {
		text = fmt.Sprintf("Booster active until %s.", res.ExpiresAt.Format("2006-01-02 15:04 MST"))
	} else if res.Booster.UsesRemaining != nil {
		text = fmt.Sprintf("Booster active, %d uses left.", *res.Booster.UsesRemaining)
	}
	b.sendText(chatID, text)
}

func (b *Bot) redeemCode(ctx context.Context, from *tgbotapi.User, chatID int64, raw string) {
	user, ok := b.user(ctx, from, chatID)
	if !ok {
		return
	}
	if _, err := b.svc.Codes.Redeem(ctx, user.ID, raw); err != nil {
		b.replyError(chatID, "redeem code", err)
		return
	}
	b.sendText(chatID, "Premium unlocked. Thank you!")
}

func (b *Bot) handleAccess(ctx context.Context, msg *tgbotapi.Message, feature string) {
	if feature == "" {
		b.sendText(msg.Chat.ID, "Usage: /access <feature>")
		return
	}
	user, ok := b.user(ctx, msg.From, msg.Chat.ID)
	if !ok {
		return
	}
	d, err := b.svc.Gate.CheckAccess(ctx, user.ID, feature)
	if err != nil {
		b.replyError(msg.Chat.ID, "check access", err)
		return
	}
	text := fmt.Sprintf("%s: %s", feature, d.Reason)
	if d.Limit != nil && d.CurrentUsage != nil {
		text += fmt.Sprintf(" (%d/%d used)", *d.CurrentUsage, *d.Limit)
	}
	b.sendText(msg.Chat.ID, text)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	username := ""
	firstName := ""
	telegramID := chatID
	if from != nil {
		username = from.UserName
		firstName = from.FirstName
		telegramID = from.ID
	}
	return b.svc.Users.Ensure(ctx, telegramID, username, firstName)
}

func (b *Bot) user(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool) {
	user, _, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.replyError(chatID, "ensure user", err)
		return nil, false
	}
	return user, true
}

func (b *Bot) replyError(chatID int64, op string, err error) {
	if service.KindOf(err) == service.KindInternal {
		b.log.Error(op, "chat", chatID, "err", err)
	}
	b.sendText(chatID, service.Message(err))
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}
