package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"numbot/core/telegram/callbacks"
	"numbot/core/telegram/format"
	tghelpers "numbot/core/telegram/helpers"
	"numbot/internal/domain"

	tele "gopkg.in/telebot.v4"
)

// cmdApprove handles /approve <user_id>.
func (h *Handlers) cmdApprove(c tele.Context) error {
	targetID, err := parseTargetID(c)
	if err != nil {
		return tghelpers.SendMD(c, "Usage: `/approve <user_id>`")
	}
	return h.approve(c, targetID, tghelpers.SendMD)
}

// onApproveCallback handles the inline Approve button from the
// new-user notification.
func (h *Handlers) onApproveCallback(c tele.Context) error {
	if c.Sender().ID != h.gate.AdminID() {
		return tghelpers.EditOrSendMD(c, msgAdminOnly)
	}
	targetID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Broken approval payload.")
	}
	return h.approve(c, targetID, tghelpers.EditOrSendMD)
}

func (h *Handlers) approve(c tele.Context, targetID int64, reply func(tele.Context, string, ...*tele.ReplyMarkup) error) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.admin.Approve(ctx, targetID); err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			return reply(c, fmt.Sprintf("User `%d` is not registered.", targetID))
		}
		return h.replyErr(c, err)
	}
	return reply(c, fmt.Sprintf("✅ User `%d` approved.", targetID))
}

// cmdBlock handles /block <user_id>.
func (h *Handlers) cmdBlock(c tele.Context) error {
	targetID, err := parseTargetID(c)
	if err != nil {
		return tghelpers.SendMD(c, "Usage: `/block <user_id>`")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.admin.Block(ctx, targetID); err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			return tghelpers.SendMD(c, fmt.Sprintf("User `%d` is not registered.", targetID))
		}
		if errors.Is(err, domain.ErrAdminOnly) {
			return tghelpers.SendMD(c, "You cannot block the administrator.")
		}
		return h.replyErr(c, err)
	}
	return tghelpers.SendMD(c, fmt.Sprintf("⛔ User `%d` blocked.", targetID))
}

// cmdUsers handles /users.
func (h *Handlers) cmdUsers(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	users, err := h.admin.ListUsers(ctx)
	if err != nil {
		return h.replyErr(c, err)
	}
	if len(users) == 0 {
		return tghelpers.SendMD(c, "No users registered yet.")
	}
	lines := make([]string, 0, len(users)+1)
	lines = append(lines, format.Bold(fmt.Sprintf("👥 Users (%d):", len(users))))
	for _, u := range users {
		status := "⏳ pending"
		if u.Approved {
			status = "✅ approved"
		}
		cred := ""
		if u.HasCred {
			cred = ", 🔑"
		}
		lines = append(lines, fmt.Sprintf("`%d` %s — %s%s, numbers: %d",
			u.ID, format.EscapeMarkdown(u.DisplayName), status, cred, u.Numbers))
	}
	return tghelpers.SendMD(c, strings.Join(lines, "\n"))
}

// cmdPending handles /pending.
func (h *Handlers) cmdPending(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	pending, err := h.admin.ListPending(ctx)
	if err != nil {
		return h.replyErr(c, err)
	}
	if len(pending) == 0 {
		return tghelpers.SendMD(c, "Approval queue is empty.")
	}
	lines := make([]string, 0, len(pending)+1)
	lines = append(lines, format.Bold(fmt.Sprintf("⏳ Pending approval (%d):", len(pending))))
	for _, u := range pending {
		lines = append(lines, fmt.Sprintf("`%d` %s", u.ID, format.EscapeMarkdown(u.DisplayName)))
	}
	return tghelpers.SendMD(c, strings.Join(lines, "\n"))
}

func parseTargetID(c tele.Context) (int64, error) {
	args := c.Args()
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one argument")
	}
	return strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
}
