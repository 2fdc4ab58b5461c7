package barcode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Rule is one entry of the ordered rule table. Rules are tried in declaration
// order and the first rule whose length bounds, pattern and extractor all pass
// wins. Order is the tie-break: a looser rule placed earlier shadows later ones.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract func(bc string) (string, error)
	MinLen  int
	MaxLen  int // 0 = unbounded
}

type Result struct {
	Valid    bool
	Serial   string
	Type     string
	Original string
	Err      string
}

type Validator struct {
	rules []Rule
}

// Accessory barcodes are 12 digits with a fixed 6-digit prefix.
const accessoryPrefix = "460023"

func DefaultRules() []Rule {
	verbatim := func(bc string) (string, error) { return bc, nil }
	return []Rule{
		{
			Name:    "Accessory",
			Pattern: regexp.MustCompile(`^` + accessoryPrefix + `\d{6}$`),
			Extract: verbatim,
			MinLen:  12,
			MaxLen:  12,
		},
		{
			Name:    "RC",
			Pattern: regexp.MustCompile(`^RC-\d{3}-\d{6}$`),
			Extract: verbatim,
			MinLen:  13,
			MaxLen:  13,
		},
		{
			Name:    "Amazon",
			Pattern: regexp.MustCompile(`^FBA.+U.+$`),
			Extract: extractFBA,
			MinLen:  19,
			MaxLen:  19,
		},
		{
			Name:    "Shopify",
			Pattern: regexp.MustCompile(`^\d{34}$`),
			Extract: func(bc string) (string, error) { return bc[len(bc)-12:], nil },
			MinLen:  34,
			MaxLen:  34,
		},
		{
			// Safety-net rule: anything 10-12 chars passes through as-is.
			Name:    "Amazon",
			Pattern: regexp.MustCompile(`^.+$`),
			Extract: verbatim,
			MinLen:  10,
			MaxLen:  12,
		},
	}
}

// NewValidator builds a validator over the given rules; with no arguments it
// uses the default rule set. The rule slice is not copied, callers must not
// mutate it afterwards.
func NewValidator(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

func (v *Validator) Validate(raw string) Result {
	bc := strings.TrimSpace(raw)

	for _, r := range v.rules {
		if len(bc) < r.MinLen {
			continue
		}
		if r.MaxLen > 0 && len(bc) > r.MaxLen {
			continue
		}
		if !r.Pattern.MatchString(bc) {
			continue
		}
		serial, err := r.Extract(bc)
		if err != nil {
			// Extraction failure means "this rule did not match", not a
			// classification error: fall through to the next rule.
			continue
		}
		return Result{
			Valid:    true,
			Serial:   serial,
			Type:     r.Name,
			Original: bc,
		}
	}

	return Result{
		Valid:    false,
		Type:     "Unknown",
		Original: bc,
		Err:      fmt.Sprintf("No matching pattern for barcode length %d", len(bc)),
	}
}

func extractFBA(bc string) (string, error) {
	i := strings.Index(bc[3:], "U")
	if i < 0 {
		return "", errors.New("no 'U' delimiter in FBA barcode")
	}
	return "FBA" + bc[3:3+i], nil
}
