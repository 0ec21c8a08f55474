// Package money formats yen amounts for messages shown to users.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Japanese)

// Format renders amount with a yen sign and thousands separators, e.g. ¥15,000.
func Format(amount int64) string {
	return printer.Sprintf("¥%d", amount)
}
