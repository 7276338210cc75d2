package bot

import (
	"errors"
	"strings"

	"numbot/core/telegram/format"
	tghelpers "numbot/core/telegram/helpers"
	"numbot/core/telegram/state"
	"numbot/internal/domain"

	tele "gopkg.in/telebot.v4"
)

// Conversation states. Everything else is idle.
const (
	stateAwaitingCredentials state.State = "awaiting_credentials"
	stateAwaitingSelector    state.State = "awaiting_selector"
)

// tempLastSelector remembers the last selector that produced a number,
// used as a hint when the buy dialog reopens.
const tempLastSelector = "last_selector"

func (h *Handlers) registerFSM() {
	state.RegisterHandler(stateAwaitingCredentials, h.onCredentialInput)
	state.RegisterHandler(stateAwaitingSelector, h.onSelectorInput)
}

func (h *Handlers) cancelDialog(c tele.Context, text string) (bool, error) {
	if !strings.EqualFold(strings.TrimSpace(text), "cancel") && strings.TrimSpace(text) != "/cancel" {
		return false, nil
	}
	h.fsm.ClearState(c.Sender().ID)
	return true, tghelpers.SendMD(c, "Cancelled.", mainMenu())
}

// onCredentialInput consumes "SID TOKEN" while in the login dialog.
// Malformed or rejected pairs keep the dialog open for a retry.
func (h *Handlers) onCredentialInput(c tele.Context) error {
	text := c.Text()
	if done, err := h.cancelDialog(c, text); done {
		return err
	}

	sid, token, ok := splitCredential(text)
	if !ok {
		return tghelpers.SendMD(c, "Send *two* values: the Account SID and the Auth Token, separated by a space.")
	}

	ctx := tghelpers.BuildContext(c)
	err := h.gate.BindCredential(ctx, c.Sender().ID, sid, token)
	switch {
	case err == nil:
		h.fsm.ClearState(c.Sender().ID)
		return tghelpers.SendMD(c, "🔑 Credential verified and saved.", mainMenu())
	case errors.Is(err, domain.ErrMalformedCredential),
		errors.Is(err, domain.ErrCredentialRejected):
		// stay in the dialog
		return h.replyErr(c, err)
	default:
		h.fsm.ClearState(c.Sender().ID)
		return h.replyErr(c, err)
	}
}

// onSelectorInput consumes the country selector in the buy dialog.
func (h *Handlers) onSelectorInput(c tele.Context) error {
	text := c.Text()
	if done, err := h.cancelDialog(c, text); done {
		return err
	}

	selector := strings.TrimSpace(text)
	if selector == "" {
		return tghelpers.SendMD(c, "Send a country selector, e.g. `+1` or `US`.")
	}

	ctx := tghelpers.BuildContext(c)
	h.fsm.SetTemp(c.Sender().ID, tempLastSelector, selector)
	number, err := h.numbers.Acquire(ctx, c.Sender().ID, selector)
	if err != nil {
		h.fsm.ClearTemp(c.Sender().ID, tempLastSelector)
		h.fsm.ClearState(c.Sender().ID)
		return h.replyErr(c, err)
	}
	h.fsm.ClearState(c.Sender().ID)
	return tghelpers.SendMD(c, "📱 Your new number: "+format.Mono(number), mainMenu())
}

// splitCredential accepts "SID TOKEN", "SID|TOKEN" or one value per line.
func splitCredential(text string) (string, string, bool) {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool {
		return r == ' ' || r == '|' || r == '\n' || r == '\t'
	})
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}
