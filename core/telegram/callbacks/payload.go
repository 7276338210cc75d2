package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PayloadInt64 parses callback payload as int64.
func PayloadInt64(c tele.Context) (int64, error) {
	p := CallbackPayload(c)
	return strconv.ParseInt(p, 10, 64)
}

// PayloadString returns the trimmed callback payload, or an error when empty.
// Phone numbers ride through callbacks verbatim, so no further decoding is applied.
func PayloadString(c tele.Context) (string, error) {
	p := strings.TrimSpace(CallbackPayload(c))
	if p == "" {
		return "", strconv.ErrSyntax
	}
	return p, nil
}
