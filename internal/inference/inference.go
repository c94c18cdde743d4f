// Package inference implements the Type Inferencer (C3): given a sample of
// raw string values from one column, it infers a single SqlColumnType by
// scoring each candidate type's reliability and resolving ties by a fixed
// priority order.
package inference

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/csv-migrator/internal/domain"
)

// MaxSample caps how many raw values are considered per column, matching
// the inferencer's "up to 5,000 raw string values" input contract.
const MaxSample = 5000

var bitValues = map[string]bool{
	"0": true, "1": true,
	"true": true, "false": true,
	"sim": true, "não": true, "nao": true,
	"yes": true, "no": true,
}

// dateLayouts are tried in order for the date candidate; all are
// date-only so any successful parse trivially has a zero time-of-day.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "01/02/2006"}

// dateTimeLayouts cover the common timestamp formats.
var dateTimeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
}

var decimalShape = regexp.MustCompile(`^[+-]?(\d+)(\.(\d+))?$`)

type kind int

const (
	kindBit kind = iota
	kindInt
	kindBigInt
	kindDecimal
	kindDate
	kindDateTime
	kindNVarChar
)

// priority breaks reliability ties; lower wins.
var priority = map[kind]int{
	kindBit: 1, kindInt: 2, kindBigInt: 3, kindDecimal: 4,
	kindDate: 5, kindDateTime: 6, kindNVarChar: 99,
}

var threshold = map[kind]float64{
	kindBit: 0.90, kindInt: 0.80, kindBigInt: 0.80, kindDecimal: 0.80,
	kindDate: 0.80, kindDateTime: 0.80, kindNVarChar: 0.90,
}

// fallbackEligible is the set of candidates allowed to win via the
// step-2 relaxed fallback (reliability ≥ 0.50, beats nvarchar). bit is
// deliberately excluded: coercing ambiguous data to a boolean is riskier
// than coercing it to a number or timestamp, so a boolean column that
// misses its strict 0.90 bar falls all the way to nvarchar instead of
// being promoted on a weaker showing.
var fallbackEligible = map[kind]bool{
	kindInt: true, kindBigInt: true, kindDecimal: true, kindDate: true, kindDateTime: true,
}

type result struct {
	kind          kind
	reliability   float64
	maxIntDigits  int
	maxFracDigits int
	maxLen        int
}

// Infer returns the inferred SqlColumnType for the given sample of raw
// column values. Values are truncated to MaxSample; only non-empty values
// count toward reliability ratios.
func Infer(values []string) domain.SqlColumnType {
	if len(values) > MaxSample {
		values = values[:MaxSample]
	}

	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(v))
		}
	}
	if len(nonEmpty) == 0 {
		return domain.NVarChar255(false)
	}

	results := evaluate(nonEmpty)
	byKind := make(map[kind]result, len(results))
	for _, r := range results {
		byKind[r.kind] = r
	}

	var qualifying []result
	for _, r := range results {
		if r.reliability >= threshold[r.kind] {
			qualifying = append(qualifying, r)
		}
	}
	if len(qualifying) > 0 {
		sort.SliceStable(qualifying, func(i, j int) bool {
			if qualifying[i].reliability != qualifying[j].reliability {
				return qualifying[i].reliability > qualifying[j].reliability
			}
			return priority[qualifying[i].kind] < priority[qualifying[j].kind]
		})
		return toColumnType(qualifying[0], true)
	}

	nvarchar := byKind[kindNVarChar]
	var best *result
	for _, r := range results {
		if !fallbackEligible[r.kind] {
			continue
		}
		if r.reliability < 0.50 || r.reliability < nvarchar.reliability {
			continue
		}
		if best == nil || r.reliability > best.reliability ||
			(r.reliability == best.reliability && priority[r.kind] < priority[best.kind]) {
			rCopy := r
			best = &rCopy
		}
	}
	if best != nil {
		return toColumnType(*best, false)
	}

	return domain.NVarChar255(false)
}

func toColumnType(r result, reliable bool) domain.SqlColumnType {
	switch r.kind {
	case kindBit:
		return domain.SqlColumnType{TypeName: domain.TypeBit, Reliable: reliable}
	case kindInt:
		return domain.SqlColumnType{TypeName: domain.TypeInt, Reliable: reliable}
	case kindBigInt:
		return domain.SqlColumnType{TypeName: domain.TypeBigInt, Reliable: reliable}
	case kindDecimal:
		precision := r.maxIntDigits + r.maxFracDigits
		if precision < 1 {
			precision = 1
		}
		scale := r.maxFracDigits
		if scale > precision {
			scale = precision
		}
		return domain.SqlColumnType{TypeName: domain.TypeDecimal, Precision: &precision, Scale: &scale, Reliable: reliable}
	case kindDate:
		return domain.SqlColumnType{TypeName: domain.TypeDate, Reliable: reliable}
	case kindDateTime:
		return domain.SqlColumnType{TypeName: domain.TypeDateTime, Reliable: reliable}
	default:
		if r.maxLen > 255 {
			return domain.NVarCharMax(reliable)
		}
		return domain.NVarChar255(reliable)
	}
}

func evaluate(values []string) []result {
	n := float64(len(values))

	var bitValid, intFit, bigintParse, decValid, dateValid, dtValid, strValid int
	maxIntDigits, maxFracDigits, maxLen := 0, 0, 0

	for _, v := range values {
		if len(v) > maxLen {
			maxLen = len(v)
		}

		isBit := isBitValue(v)
		if isBit {
			bitValid++
		}
		isInt := parseInt32Valid(v)
		if isInt {
			intFit++
		}
		isBigInt := parseInt64Valid(v)
		if isBigInt {
			bigintParse++
		}
		intDigits, fracDigits, isDec := parseDecimalShape(v)
		if isDec {
			decValid++
			if intDigits > maxIntDigits {
				maxIntDigits = intDigits
			}
			if fracDigits > maxFracDigits {
				maxFracDigits = fracDigits
			}
		}
		isDate := parsesAsDate(v)
		if isDate {
			dateValid++
		}
		isDateTime := parsesAsDateTime(v)
		if isDateTime {
			dtValid++
		}
		if !(isBit || isInt || isBigInt || isDec || isDate || isDateTime) {
			strValid++
		}
	}

	bigintReliability := float64(bigintParse) / n
	if intFit == len(values) {
		// Every sample fits in int; bigint adds nothing and is rejected.
		bigintReliability = 0
	}

	return []result{
		{kind: kindBit, reliability: float64(bitValid) / n},
		{kind: kindInt, reliability: float64(intFit) / n},
		{kind: kindBigInt, reliability: bigintReliability},
		{kind: kindDecimal, reliability: float64(decValid) / n, maxIntDigits: maxIntDigits, maxFracDigits: maxFracDigits},
		{kind: kindDate, reliability: float64(dateValid) / n},
		{kind: kindDateTime, reliability: float64(dtValid) / n},
		{kind: kindNVarChar, reliability: float64(strValid) / n, maxLen: maxLen},
	}
}

func isBitValue(v string) bool {
	return bitValues[strings.ToLower(strings.TrimSpace(v))]
}

func parseInt32Valid(v string) bool {
	_, err := strconv.ParseInt(v, 10, 32)
	return err == nil
}

func parseInt64Valid(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func parseDecimalShape(v string) (intDigits, fracDigits int, ok bool) {
	m := decimalShape.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, false
	}
	return len(m[1]), len(m[3]), true
}

func parsesAsDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func parsesAsDateTime(v string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
