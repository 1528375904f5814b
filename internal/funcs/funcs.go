package funcs

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/exp/constraints"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// TemplateFuncs is shared by the text and html email templates.
var TemplateFuncs = map[string]any{
	// Time functions
	"now":            time.Now,
	"formatTime":     formatTime,
	"approxDuration": approxDuration,

	// String functions
	"toUpper":   strings.ToUpper,
	"toTitle":   toTitle,
	"shortAddr": shortAddr,

	// Number functions
	"formatInt":   formatInt[int],
	"formatInt64": formatInt[int64],
	"formatFloat": formatFloat[float64],
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

func approxDuration(d time.Duration) string {
	const (
		day  = 24 * time.Hour
		year = 365 * day
	)

	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return pluralize(int64(math.Round(d.Minutes())), "minute")
	case d < day:
		return pluralize(int64(math.Round(d.Hours())), "hour")
	case d < year:
		return pluralize(int64(math.Round(d.Hours()/24)), "day")
	default:
		return pluralize(int64(math.Round(d.Hours()/24/365)), "year")
	}
}

func pluralize[T constraints.Integer](count T, singular string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%s %ss", formatInt(count), singular)
}

func toTitle(s string) string {
	return cases.Title(language.English).String(s)
}

// shortAddr renders a wallet address as "ABCD…WXYZ" for subjects and tables.
func shortAddr(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:4] + "…" + address[len(address)-4:]
}

func formatInt[T constraints.Integer](i T) string {
	return printer.Sprintf("%d", i)
}

func formatFloat[T constraints.Float](f T) string {
	return printer.Sprintf("%.2f", f)
}
