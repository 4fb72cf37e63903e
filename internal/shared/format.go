package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with thousand separators, e.g. 1,000,000.00.
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}
