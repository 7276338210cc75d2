package bot

import (
	"numbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Main menu labels. Labels double as command aliases so a button tap
// routes through the same registry entry as the slash command.
const (
	btnLogin     = "Login"
	btnBalance   = "Check Balance"
	btnBuy       = "Buy Number"
	btnMyNumbers = "My Numbers"
	btnRelease   = "Release Number"
	btnOTP       = "View OTP"
	btnLogout    = "Logout"
)

// Callback uniques. The callback router dispatches on these keys only;
// anything else hits the not-found fallback.
const (
	cbApprove        = "approve"
	cbOTP            = "otp"
	cbReleaseConfirm = "relc"
	cbLogoutConfirm  = "logoutc"
)

const cancelPayload = "cancel"

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{btnBalance, btnBuy},
		[]string{btnRelease, btnOTP},
		[]string{btnLogin, btnMyNumbers},
		[]string{btnLogout},
	)
}

// numberPicker renders one inline button per owned number, all bound to
// the same unique with the number as payload.
func numberPicker(unique string, numbers []string) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(numbers))
	for _, n := range numbers {
		rows = append(rows, []keyboard.InlineBtn{{Text: n, Unique: unique, Data: n}})
	}
	return keyboard.InlineButtonsRows(rows...)
}

func confirmMarkup(unique, payload, confirmText string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	confirm := markup.Data(confirmText, unique, payload)
	cancel := keyboard.CancelButton(markup, unique)
	markup.InlineKeyboard = [][]tele.InlineButton{
		{*confirm.Inline()},
		{*cancel.Inline()},
	}
	return markup
}

func approveMarkup(targetID string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: cbApprove, Data: targetID},
	})
}
