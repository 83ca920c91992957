package util

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ClassNames merges CSS class names. Inputs may be strings, []string or
// map[string]bool (keys with a true value are kept). When two tailwind
// utilities set the same property under the same variant ("p-2" and "p-4",
// "bg-red-500" and "bg-blue-500"), the later one wins. A later shorthand also
// drops earlier longhands, so "px-2 p-4" keeps only "p-4".
func ClassNames(inputs ...any) string {
	var flat []string
	for _, in := range inputs {
		switch v := in.(type) {
		case string:
			flat = append(flat, strings.Fields(v)...)
		case []string:
			for _, s := range v {
				flat = append(flat, strings.Fields(s)...)
			}
		case map[string]bool:
			for s, ok := range v {
				if ok {
					flat = append(flat, strings.Fields(s)...)
				}
			}
		case nil:
		default:
			flat = append(flat, strings.Fields(fmt.Sprint(v))...)
		}
	}

	// walk backwards so the last class of each group is the one kept
	seen := make(map[string]bool, len(flat))
	kept := make([]string, 0, len(flat))
	for i := len(flat) - 1; i >= 0; i-- {
		variant, group := classGroup(flat[i])
		if seen[variant+group] {
			continue
		}
		seen[variant+group] = true
		for _, g := range conflictingGroups[group] {
			seen[variant+g] = true
		}
		kept = append(kept, flat[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, " ")
}

var keywordGroups = map[string]string{
	"block": "display", "inline-block": "display", "inline": "display",
	"flex": "display", "inline-flex": "display", "grid": "display",
	"inline-grid": "display", "table": "display", "contents": "display",
	"hidden": "display",

	"static": "position", "fixed": "position", "absolute": "position",
	"relative": "position", "sticky": "position",

	"text-left": "text-align", "text-center": "text-align",
	"text-right": "text-align", "text-justify": "text-align",
	"text-base": "text-size",
}

var fontWeights = map[string]bool{
	"thin": true, "extralight": true, "light": true, "normal": true,
	"medium": true, "semibold": true, "bold": true, "extrabold": true,
	"black": true,
}

var colorPrefixes = map[string]bool{
	"bg": true, "text": true, "border": true, "from": true, "via": true,
	"to": true, "ring": true, "fill": true, "stroke": true, "outline": true,
	"divide": true, "placeholder": true, "decoration": true, "accent": true,
	"caret": true, "shadow": true,
}

var colorNames = map[string]bool{
	"slate": true, "gray": true, "zinc": true, "neutral": true, "stone": true,
	"red": true, "orange": true, "amber": true, "yellow": true, "lime": true,
	"green": true, "emerald": true, "teal": true, "cyan": true, "sky": true,
	"blue": true, "indigo": true, "violet": true, "purple": true,
	"fuchsia": true, "pink": true, "rose": true,
}

var bareColors = map[string]bool{
	"black": true, "white": true, "transparent": true, "current": true,
	"inherit": true,
}

// conflictingGroups lists the longhand groups a shorthand overrides.
var conflictingGroups = map[string][]string{
	"p":     {"px", "py", "pt", "pr", "pb", "pl", "ps", "pe"},
	"px":    {"pr", "pl", "ps", "pe"},
	"py":    {"pt", "pb"},
	"m":     {"mx", "my", "mt", "mr", "mb", "ml", "ms", "me"},
	"mx":    {"mr", "ml", "ms", "me"},
	"my":    {"mt", "mb"},
	"inset": {"inset-x", "inset-y", "top", "right", "bottom", "left"},
}

// classGroup splits class into its variant prefix ("hover:", "md:") and the
// group of utilities that set the same property.
func classGroup(class string) (variant, group string) {
	base := class
	if idx := strings.LastIndexByte(class, ':'); idx >= 0 {
		variant, base = class[:idx+1], class[idx+1:]
	}
	base = strings.TrimPrefix(base, "!")
	base = strings.TrimPrefix(base, "-")

	if g, ok := keywordGroups[base]; ok {
		return variant, g
	}
	if w, ok := strings.CutPrefix(base, "font-"); ok && fontWeights[w] {
		return variant, "font-weight"
	}
	if size, ok := strings.CutPrefix(base, "text-"); ok && sizeTokens[size] {
		return variant, "text-size"
	}
	if prefix, value, ok := strings.Cut(base, "-"); ok && colorPrefixes[prefix] && isColor(value) {
		return variant, prefix + "-color"
	}

	idx := strings.LastIndexByte(base, '-')
	if idx <= 0 || !isValueToken(base[idx+1:]) {
		return variant, base
	}
	return variant, base[:idx]
}

// isColor reports whether value names a palette colour, with an optional
// shade and opacity modifier ("blue-500", "white/10").
func isColor(value string) bool {
	value, _, _ = strings.Cut(value, "/")
	if bareColors[value] {
		return true
	}
	name, shade, ok := strings.Cut(value, "-")
	if !colorNames[name] {
		return false
	}
	return !ok || isValueToken(shade)
}

var sizeTokens = map[string]bool{
	"xs": true, "sm": true, "md": true, "lg": true, "xl": true,
	"2xl": true, "3xl": true, "4xl": true, "5xl": true, "6xl": true,
	"7xl": true, "8xl": true, "9xl": true, "full": true,
}

func isValueToken(s string) bool {
	if s == "" {
		return false
	}
	if sizeTokens[s] || s == "auto" || s == "px" {
		return true
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '/' {
			return false
		}
	}
	return true
}

// symbolAfter lists the languages that write the currency symbol after the
// amount, separated by a no-break space.
var symbolAfter = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "ru": true, "pl": true,
	"cs": true, "sk": true, "sv": true, "fi": true, "nb": true, "da": true,
	"hu": true, "ro": true, "bg": true, "uk": true, "lt": true, "lv": true,
	"et": true, "hr": true, "sl": true, "el": true, "tr": true, "vi": true,
}

// FormatCurrency formats value as money. Empty currency defaults to USD and
// an empty locale to en-US. Halves round away from zero.
func FormatCurrency(value float64, code, locale string) (string, error) {
	if code == "" {
		code = "USD"
	}
	if locale == "" {
		locale = "en-US"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("parse currency %q: %w", code, err)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("parse locale %q: %w", locale, err)
	}

	p := message.NewPrinter(tag)
	scale, _ := currency.Standard.Rounding(unit)
	pow := math.Pow10(scale)
	rounded := math.Round(math.Abs(value)*pow) / pow

	sign := ""
	if value < 0 && rounded != 0 {
		sign = "-"
	}
	symbol := p.Sprint(currency.Symbol(unit))
	amount := p.Sprint(number.Decimal(rounded, number.Scale(scale)))

	if base, _ := tag.Base(); symbolAfter[base.String()] {
		return sign + amount + "\u00a0" + symbol, nil
	}
	return sign + symbol + amount, nil
}

// Truncate shortens s to at most length runes and appends an ellipsis when
// anything was cut.
func Truncate(s string, length int) string {
	if length < 0 {
		length = 0
	}
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}

// Debounce returns a trigger that delays fn until wait has passed without
// another call. The argument of the last call is the one delivered. stop
// cancels a pending call.
func Debounce[T any](fn func(T), wait time.Duration) (trigger func(T), stop func()) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger = func(arg T) {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(wait, func() { fn(arg) })
	}
	stop = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	return trigger, stop
}

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns a random alphanumeric string of the given length.
func RandomString(length int) string {
	if length <= 0 {
		return ""
	}
	max := big.NewInt(int64(len(randomAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("random string: %v", err))
		}
		b.WriteByte(randomAlphabet[n.Int64()])
	}
	return b.String()
}
