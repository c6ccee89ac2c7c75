package convo

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	errEmptyNumber = errors.New("empty number")
	errNotNumber   = errors.New("not a number")

	buyPattern      = regexp.MustCompile(`^/buy(\d+)$`)
	transferPattern = regexp.MustCompile(`^/transfer\s+(\S+)\s+(\S+)$`)
	vipPattern      = regexp.MustCompile(`^[1-9]$`)
)

// digitReplacer maps Persian and Arabic-Indic digits onto ASCII.
var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

func normalizeDigits(text string) string {
	return digitReplacer.Replace(text)
}

// parseNumber reads a whole-token integer. Thousands separators are allowed,
// anything else non-numeric is rejected.
func parseNumber(text string) (int64, error) {
	text = strings.TrimSpace(normalizeDigits(text))
	if text == "" {
		return 0, errEmptyNumber
	}
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, "٬", "")
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errNotNumber
	}
	return n, nil
}

// parsePositive is parseNumber restricted to values above zero.
func parsePositive(text string) (int64, bool) {
	n, err := parseNumber(text)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// splitPair splits "<first> <second>" on whitespace. Extra fields are ignored.
func splitPair(text string) (first, second string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// splitCommand separates "/cmd@bot args" into "/cmd" and "args".
func splitCommand(text string) (cmd, args string) {
	cmd, args, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func isCancel(text string) bool {
	switch {
	case strings.EqualFold(text, "cancel"),
		strings.EqualFold(text, "/cancel"),
		text == LabelBack:
		return true
	}
	return false
}
