// Package variant parses free-text packaging descriptions ("50G x 12",
// "12 x 50G", "12x50G") into a canonical size/unit/count triple and the
// total batch weight in kilograms.
//
// Parsing never fails. Input that matches none of the supported layouts is
// returned in its separator-canonicalized form with Parsed=false and no
// weight, so callers can surface it for manual review instead of guessing.
package variant

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// ErrUnparseable marks a variant string that matched none of the layouts.
// Normalize never returns it; it exists so reports can attribute the
// degraded state to a kind.
var ErrUnparseable = errors.New("unparseable variant")

// Unit is an upper-cased packaging unit token.
type Unit string

const (
	UnitKG Unit = "KG"
	UnitG  Unit = "G"
	UnitML Unit = "ML"
	UnitL  Unit = "L"
	UnitCL Unit = "CL"
)

// Mass and volume share one base unit (grams == millilitres).
var unitFactors = map[Unit]decimal.Decimal{
	UnitKG: decimal.NewFromInt(1000),
	UnitG:  decimal.NewFromInt(1),
	UnitML: decimal.NewFromInt(1),
	UnitL:  decimal.NewFromInt(1000),
	UnitCL: decimal.NewFromInt(10),
}

var (
	baseUnitsPerKg = decimal.NewFromInt(1000)
	maxWeightKg    = decimal.NewFromInt(math.MaxInt64)
)

// maxCountDigits bounds the count before conversion; anything longer is
// not a real pack size.
const maxCountDigits = 9

// Factor returns the multiplier from this unit to base units.
func (u Unit) Factor() (decimal.Decimal, bool) {
	f, ok := unitFactors[u]
	return f, ok
}

// Known reports whether the unit has a conversion factor.
func (u Unit) Known() bool {
	_, ok := unitFactors[u]
	return ok
}

var (
	separatorRe = regexp.MustCompile(`\s*[xX×]\s*`)
	litreRe     = regexp.MustCompile(`(?i)ltr`)

	// Tried in order; first match wins.
	sizeFirstRe  = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([a-z]+)\s*x\s*(\d+)$`)
	countFirstRe = regexp.MustCompile(`(?i)^(\d+)\s*x\s*(\d+(?:\.\d+)?)\s*([a-z]+)$`)
	compactRe    = regexp.MustCompile(`(?i)^(\d+)x(\d+(?:\.\d+)?)([a-z]+)$`)
)

// Result is the outcome of parsing one variant string.
type Result struct {
	Raw    string
	Text   string              // canonical "<SIZE><UNIT> x <COUNT>" or the canonicalized input
	Size   decimal.NullDecimal // unit size as written
	Unit   Unit
	Count  int
	Parsed bool

	// WeightKg is the rounded total weight; nil when unparsed or the unit is unknown.
	WeightKg *int64
}

// HasWeight reports whether a total weight could be computed.
func (r Result) HasWeight() bool {
	return r.WeightKg != nil
}

// Err returns ErrUnparseable for a degraded result and nil otherwise.
func (r Result) Err() error {
	if !r.Parsed {
		return ErrUnparseable
	}
	return nil
}

// Canonicalize applies separator and litre canonicalization only.
func Canonicalize(raw string) string {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	s = separatorRe.ReplaceAllString(s, "x")
	s = litreRe.ReplaceAllString(s, "L")
	return s
}

// Normalize parses raw into its canonical form.
func Normalize(raw string) Result {
	canon := Canonicalize(raw)
	res := Result{Raw: raw, Text: canon}

	var sizeText, unitText, countText string
	switch {
	case sizeFirstRe.MatchString(canon):
		m := sizeFirstRe.FindStringSubmatch(canon)
		sizeText, unitText, countText = m[1], m[2], m[3]
	case countFirstRe.MatchString(canon):
		m := countFirstRe.FindStringSubmatch(canon)
		countText, sizeText, unitText = m[1], m[2], m[3]
	case compactRe.MatchString(canon):
		m := compactRe.FindStringSubmatch(canon)
		countText, sizeText, unitText = m[1], m[2], m[3]
	default:
		return res
	}

	size, err := decimal.NewFromString(sizeText)
	if err != nil {
		return res
	}
	if len(countText) > maxCountDigits {
		return res
	}
	count, err := strconv.Atoi(countText)
	if err != nil {
		return res
	}

	unit := Unit(strings.ToUpper(unitText))
	weight := TotalWeightKg(size, unit, count)
	if unit.Known() && weight == nil {
		// Known unit but the weight does not fit; degrade like any other
		// unreadable variant.
		return res
	}

	res.Text = Format(sizeText, unit, count)
	res.Size = decimal.NewNullDecimal(size)
	res.Unit = unit
	res.Count = count
	res.Parsed = true
	res.WeightKg = weight
	return res
}

// Format renders the canonical "<SIZE><UNIT> x <COUNT>" text.
func Format(size string, unit Unit, count int) string {
	return strings.ToUpper(size) + string(unit) + " x " + strconv.Itoa(count)
}

// TotalWeightKg converts size*count to kilograms, rounding half up to the
// nearest whole kilogram. Returns nil for unknown units and for totals
// that are negative or do not fit in an int64.
func TotalWeightKg(size decimal.Decimal, unit Unit, count int) *int64 {
	factor, ok := unit.Factor()
	if !ok {
		return nil
	}
	total := size.Mul(factor).
		Mul(decimal.NewFromInt(int64(count))).
		Div(baseUnitsPerKg).
		Round(0)
	if total.IsNegative() || total.GreaterThan(maxWeightKg) {
		return nil
	}
	kg := total.IntPart()
	return &kg
}
