package messages

import (
	"fmt"
	"strings"

	"EcoLedger/internal/economy"
)

// Formatter renders amounts and user-facing lines from the resolved
// configuration values. Templates use %placeholder% markers; unknown markers
// are left untouched so a broken template degrades visibly instead of
// crashing the command surface.
type Formatter struct {
	currencyName       string
	currencyNamePlural string
	topFormat          string
}

// Templates overridable via configuration, with the shipped defaults.
const (
	DefaultTopFormat = "#%rank% %player% has %amount%"

	InsufficientFunds = "%player% does not have enough %currency%"
	InvalidAmount     = "please enter a valid amount"
	UnknownAccount    = "no active account named %player%"
	PaySelf           = "you cannot pay yourself"
)

func NewFormatter(currencyName, currencyNamePlural, topFormat string) *Formatter {
	if topFormat == "" {
		topFormat = DefaultTopFormat
	}
	return &Formatter{
		currencyName:       currencyName,
		currencyNamePlural: currencyNamePlural,
		topFormat:          topFormat,
	}
}

// FormatAmount renders an amount with the currency name, singular for
// exactly 1, plural otherwise: "1.00 Coin", "2.50 Coins".
func (f *Formatter) FormatAmount(amount float64) string {
	if amount == 1 {
		return fmt.Sprintf("%.2f %s", amount, f.currencyName)
	}
	return fmt.Sprintf("%.2f %s", amount, f.currencyNamePlural)
}

// CurrencyName returns the singular currency name.
func (f *Formatter) CurrencyName() string { return f.currencyName }

// CurrencyNamePlural returns the plural currency name.
func (f *Formatter) CurrencyNamePlural() string { return f.currencyNamePlural }

// Render substitutes %key% markers in a template.
func Render(template string, placeholders map[string]string) string {
	out := template
	for key, val := range placeholders {
		out = strings.ReplaceAll(out, "%"+key+"%", val)
	}
	return out
}

// FormatTop renders leaderboard entries into display lines using the
// configured top format.
func (f *Formatter) FormatTop(entries []economy.LeaderboardEntry) []string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = Render(f.topFormat, map[string]string{
			"rank":   fmt.Sprintf("%d", e.Rank),
			"player": e.DisplayName,
			"amount": f.FormatAmount(e.Balance),
		})
	}
	return lines
}
