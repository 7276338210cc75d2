package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"numbot/core/logger"
	"numbot/core/telegram/callbacks"
	"numbot/core/telegram/format"
	tghelpers "numbot/core/telegram/helpers"
	"numbot/core/telegram/keyboard"
	"numbot/core/telegram/state"
	adminsvc "numbot/internal/admin"
	"numbot/internal/auth"
	"numbot/internal/domain"
	"numbot/internal/numbers"

	tele "gopkg.in/telebot.v4"
)

const cbReleasePick = "rel"

// User-facing guidance per authorization decision. Every non-allowed
// outcome gets its own message, never a generic error.
const (
	msgPending    = "⏳ Your account is awaiting administrator approval. You will be notified once access is granted."
	msgCredential = "🔑 No provider credential bound yet. Tap *Login* and send your Account SID and Auth Token."
	msgAdminOnly  = "⛔ This command is reserved for the administrator."
	msgWelcome    = "Welcome! Pick an action from the menu below."
)

// Handlers binds chat events to the services.
type Handlers struct {
	gate    *auth.Gate
	numbers *numbers.Manager
	admin   *adminsvc.Service
	fsm     state.Manager

	bot atomic.Pointer[tele.Bot]
}

// attach stores the live bot instance for outbound notifications.
func (h *Handlers) attach(b *tele.Bot) {
	h.bot.Store(b)
}

// notify sends an advisory message to a user outside the current update.
func (h *Handlers) notify(userID int64, text string, opts ...interface{}) error {
	b := h.bot.Load()
	if b == nil {
		return errors.New("bot not started")
	}
	_, err := b.Send(&tele.User{ID: userID}, text, opts...)
	return err
}

// onStart handles first contact and the /start command.
func (h *Handlers) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	created, err := h.gate.EnsureUser(ctx, sender.ID, displayName(sender))
	if err != nil {
		return h.replyErr(c, err)
	}

	decision, err := h.gate.Authorize(ctx, sender.ID, auth.Action{Name: "start"})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		if created {
			h.notifyAdminNewUser(c, sender)
		}
		return h.replyDecision(c, decision)
	}
	return tghelpers.SendMD(c, msgWelcome, mainMenu())
}

// onText is the fallback for free text outside any FSM dialog.
func (h *Handlers) onText(c tele.Context) error {
	return tghelpers.SendMD(c, "Use the menu below or /start.", mainMenu())
}

func (h *Handlers) notifyAdminNewUser(c tele.Context, sender *tele.User) {
	ctx := tghelpers.BuildContext(c)
	text := fmt.Sprintf("👤 New access request from %s (id %d).",
		format.EscapeMarkdown(displayName(sender)), sender.ID)
	err := h.notify(h.gate.AdminID(), text,
		approveMarkup(fmt.Sprintf("%d", sender.ID)),
		&tele.SendOptions{ParseMode: tele.ModeMarkdown},
	)
	if err != nil {
		logger.Warn(ctx, "tg", "admin.notify.fail",
			slog.Int64("user_id", sender.ID),
			slog.String("err", err.Error()),
		)
	}
}

// handleLogin starts the credential dialog.
func (h *Handlers) handleLogin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: "login"})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	h.fsm.SetState(c.Sender().ID, stateAwaitingCredentials)
	return tghelpers.SendMD(c, "Send your *Account SID* and *Auth Token* separated by a space.\nType `cancel` to abort.")
}

// handleBalance fetches the provider account balance.
func (h *Handlers) handleBalance(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: "balance", CredentialGated: true})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	balance, err := h.gate.Balance(ctx, c.Sender().ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	return tghelpers.SendMD(c, "💰 Balance: "+format.Mono(balance))
}

// handleBuy starts the selector dialog for number acquisition.
func (h *Handlers) handleBuy(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: "buy", CredentialGated: true})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	h.fsm.SetState(c.Sender().ID, stateAwaitingSelector)
	prompt := "Send a country selector, e.g. `+1` or `US`.\nType `cancel` to abort."
	if last, ok := h.fsm.GetTempString(c.Sender().ID, tempLastSelector); ok {
		prompt = "Send a country selector, e.g. `+1` or `US` (last time you used `" + last + "`).\nType `cancel` to abort."
	}
	return tghelpers.SendMD(c, prompt)
}

// handleMyNumbers lists the caller's owned set.
func (h *Handlers) handleMyNumbers(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: "my_numbers"})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	owned, err := h.numbers.List(ctx, c.Sender().ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	if len(owned) == 0 {
		return tghelpers.SendMD(c, "You own no numbers yet. Tap *Buy Number* to get one.")
	}
	lines := make([]string, 0, len(owned)+1)
	lines = append(lines, "📒 Your numbers:")
	for i, n := range owned {
		lines = append(lines, format.Item(i+1, n))
	}
	return tghelpers.SendMD(c, strings.Join(lines, "\n"))
}

// handleRelease shows the number picker for release.
func (h *Handlers) handleRelease(c tele.Context) error {
	return h.pickNumber(c, "release", cbReleasePick, "Pick a number to release:")
}

// handleOTP shows the number picker for inbox inspection.
func (h *Handlers) handleOTP(c tele.Context) error {
	return h.pickNumber(c, "otp", cbOTP, "Pick a number to check for codes:")
}

func (h *Handlers) pickNumber(c tele.Context, action, unique, prompt string) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: action})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	owned, err := h.numbers.List(ctx, c.Sender().ID)
	if err != nil {
		return h.replyErr(c, err)
	}
	if len(owned) == 0 {
		return tghelpers.SendMD(c, "You own no numbers yet. Tap *Buy Number* to get one.")
	}
	return tghelpers.SendMD(c, prompt, numberPicker(unique, owned))
}

// onReleasePick is phase one of release: an explicit confirmation
// naming the exact number before anything mutates.
func (h *Handlers) onReleasePick(c tele.Context) error {
	number, err := callbacks.PayloadString(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Nothing selected.")
	}
	markup := confirmMarkup(cbReleaseConfirm, number, "🗑 Release "+number)
	return tghelpers.EditOrSendMD(c, "Release "+format.Mono(number)+"? This cannot be undone.", markup)
}

// onReleaseConfirm is phase two: ownership is re-validated inside the
// manager, so a raced double-confirm fails instead of mutating blindly.
func (h *Handlers) onReleaseConfirm(c tele.Context) error {
	payload, err := callbacks.PayloadString(c)
	if err != nil || payload == cancelPayload {
		return tghelpers.EditOrSendMD(c, "Release cancelled.")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.numbers.Release(ctx, c.Sender().ID, payload); err != nil {
		return h.editErr(c, err)
	}
	return tghelpers.EditOrSendMD(c, "✅ Released "+format.Mono(payload)+".")
}

// onOTPPick fetches the inbox and reports candidate one-time codes.
func (h *Handlers) onOTPPick(c tele.Context) error {
	number, err := callbacks.PayloadString(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Nothing selected.")
	}
	ctx := tghelpers.BuildContext(c)
	codes, err := h.numbers.Inbox(ctx, c.Sender().ID, number)
	if err != nil {
		return h.editErr(c, err)
	}
	if len(codes) == 0 {
		return tghelpers.EditOrSendMD(c, "No code present yet for "+format.Mono(number)+". Try again in a moment.")
	}
	lines := make([]string, 0, len(codes)+1)
	lines = append(lines, "📨 Codes for "+format.Mono(number)+":")
	for i, code := range codes {
		lines = append(lines, format.Item(i+1, code))
	}
	return tghelpers.EditOrSendMD(c, strings.Join(lines, "\n"))
}

// handleLogout asks for confirmation before unbinding the credential.
func (h *Handlers) handleLogout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	decision, err := h.gate.Authorize(ctx, c.Sender().ID, auth.Action{Name: "logout", CredentialGated: true})
	if err != nil {
		return h.replyErr(c, err)
	}
	if decision != auth.Allowed {
		return h.replyDecision(c, decision)
	}
	markup := confirmMarkup(cbLogoutConfirm, "yes", "🚪 Log out")
	return tghelpers.SendMD(c, "Unbind your provider credential? Owned numbers are kept.", markup)
}

func (h *Handlers) onLogoutConfirm(c tele.Context) error {
	payload, err := callbacks.PayloadString(c)
	if err != nil || payload == cancelPayload {
		return tghelpers.EditOrSendMD(c, "Logout cancelled.")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.gate.UnbindCredential(ctx, c.Sender().ID); err != nil {
		return h.editErr(c, err)
	}
	// drop dialog leftovers along with the credential
	h.fsm.Clear(c.Sender().ID)
	return tghelpers.EditOrSendMD(c, "🚪 Credential removed. Use *Login* to bind a new one.")
}

func (h *Handlers) replyDecision(c tele.Context, d auth.Decision) error {
	switch d {
	case auth.PendingApproval:
		// hide any stale menu until approval lands
		return tghelpers.SendMD(c, msgPending, keyboard.RemoveKeyboard())
	case auth.CredentialRequired:
		return tghelpers.SendMD(c, msgCredential)
	case auth.AdminOnly:
		return tghelpers.SendMD(c, msgAdminOnly)
	}
	return nil
}

// replyErr translates taxonomy errors into chat messages. Raw provider
// or store details never reach the user.
func (h *Handlers) replyErr(c tele.Context, err error) error {
	text, propagate := messageFor(err)
	if sendErr := tghelpers.SendMD(c, text); sendErr != nil {
		return sendErr
	}
	return propagate
}

func (h *Handlers) editErr(c tele.Context, err error) error {
	text, propagate := messageFor(err)
	if sendErr := tghelpers.EditOrSendMD(c, text); sendErr != nil {
		return sendErr
	}
	return propagate
}

// messageFor maps an error to a chat message and the error to surface
// in the handler summary log (nil for purely user-level outcomes).
func messageFor(err error) (string, error) {
	switch {
	case errors.Is(err, domain.ErrPendingApproval):
		return msgPending, nil
	case errors.Is(err, domain.ErrCredentialRequired):
		return msgCredential, nil
	case errors.Is(err, domain.ErrAdminOnly):
		return msgAdminOnly, nil
	case errors.Is(err, domain.ErrMalformedCredential):
		return "That does not look like a valid credential pair. The Account SID starts with `AC` and is 34 characters; the Auth Token is 32 characters.", nil
	case errors.Is(err, domain.ErrCredentialRejected):
		return "❌ The provider rejected that credential. Check the pair and try again.", nil
	case errors.Is(err, domain.ErrProviderTimeout):
		return "⌛ The provider did not answer in time. Please try again.", err
	case errors.Is(err, domain.ErrDuplicateNumber):
		return "⚠️ The provider returned a number that is already tracked. Nothing was changed — please try again.", err
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "🔌 The provider is unavailable right now. Please try again later.", err
	case errors.Is(err, domain.ErrUnknownNumber), errors.Is(err, domain.ErrNotOwned):
		return "That number is not in your list.", nil
	case errors.Is(err, domain.ErrUnknownUser):
		return "Please send /start first.", nil
	case errors.Is(err, domain.ErrCorruptState), errors.Is(err, domain.ErrStoreIO):
		return "🛠 Internal storage trouble. The administrator has been alerted via logs.", err
	}
	return "Something went wrong. Please try again.", err
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}
