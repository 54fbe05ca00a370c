// Package dosage derives dispense quantities from prescription text.
package dosage

import (
	"math/bits"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Breakdown holds the factors read from prescription text.
type Breakdown struct {
	Dose      int64 `json:"dose"`
	Frequency int64 `json:"frequency"`
	Days      int64 `json:"days"`
}

// Quantity is Dose x Frequency x Days with a floor of 1. A factor that did not
// fit in int64, or a product that overflows, fails with ErrInvalidQuantity.
func (b Breakdown) Quantity() (int64, error) {
	if b.Dose < 0 || b.Frequency < 0 || b.Days < 0 {
		return 0, shared.Wrap(shared.ErrInvalidQuantity, "dosage factor out of range")
	}
	q := uint64(1)
	for _, f := range []int64{b.Dose, b.Frequency, b.Days} {
		hi, lo := bits.Mul64(q, uint64(f))
		if hi != 0 || lo > uint64(1<<63-1) {
			return 0, shared.Wrap(shared.ErrInvalidQuantity, "%d x %d x %d overflows", b.Dose, b.Frequency, b.Days)
		}
		q = lo
	}
	if q < 1 {
		return 1, nil
	}
	return int64(q), nil
}

// Only the three words below name a frequency; abbreviations such as "bd"
// or "qid" are not interpreted.
var frequencyWords = map[string]int64{
	"once":   1,
	"twice":  2,
	"thrice": 3,
}

var (
	anyInteger        = regexp.MustCompile(`\d+`)
	standaloneInteger = regexp.MustCompile(`\b\d+\b`)
)

// Parse reads dose, frequency and day count.
//
// Dose is the first integer anywhere in the dosage text, so "2tabs" and
// "500mg" count. Frequency is "once", "twice" or "thrice" when present,
// otherwise the first standalone integer of the dosage text. Days is the first
// integer in the duration text. Missing factors are 1. A number too large for
// int64 yields -1, which Quantity rejects.
func Parse(dosageText, durationText string) Breakdown {
	b := Breakdown{Dose: 1, Frequency: 1, Days: 1}
	folded := cases.Fold().String(dosageText)

	if m := anyInteger.FindString(folded); m != "" {
		b.Dose = toInt(m)
	}

	freqFound := false
	for _, word := range strings.FieldsFunc(folded, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if n, ok := frequencyWords[word]; ok {
			b.Frequency = n
			freqFound = true
			break
		}
	}
	if !freqFound {
		if m := standaloneInteger.FindString(folded); m != "" {
			b.Frequency = toInt(m)
		}
	}

	if m := anyInteger.FindString(durationText); m != "" {
		b.Days = toInt(m)
	}
	return b
}

// Quantity derives the total units to dispense for a dose-based medicine.
func Quantity(dosageText, durationText string) (int64, error) {
	return Parse(dosageText, durationText).Quantity()
}

func toInt(digits string) int64 {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
