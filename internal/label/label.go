// Package label parses ECIA-style Data Matrix component labels: an
// "[)>"+RS+"06" envelope with GS-separated fields, each prefixed by a data
// identifier, terminated by RS+EOT.
package label

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	rs  = "\x1e"
	gs  = "\x1d"
	eot = "\x04"

	header = "[)>" + rs + "06" + gs
)

// Label holds the fields the component pipeline uses. Raw keeps every
// identifier seen on the label, including ones we have no named field for.
type Label struct {
	CustomerPartNumber     string // P
	ManufacturerPartNumber string // 1P
	Quantity               int    // Q
	LotCode                string // 1T
	DateCode               string // 9D
	CountryOfOrigin        string // 4L
	Raw                    map[string]string
}

// Parse decodes a raw Data Matrix payload. Labels without the ECIA envelope
// are rejected; unknown identifiers are kept in Raw and otherwise ignored.
func Parse(raw string) (Label, error) {
	if !strings.HasPrefix(raw, header) {
		return Label{}, errors.New("missing ECIA envelope")
	}
	body := strings.TrimPrefix(raw, header)
	body = strings.TrimSuffix(body, eot)
	body = strings.TrimSuffix(body, rs)

	l := Label{Raw: make(map[string]string)}
	for _, field := range strings.Split(body, gs) {
		if field == "" {
			continue
		}
		id, value := splitIdentifier(field)
		l.Raw[id] = value

		switch id {
		case "P":
			l.CustomerPartNumber = value
		case "1P":
			l.ManufacturerPartNumber = value
		case "Q":
			q, err := strconv.Atoi(value)
			if err != nil {
				return Label{}, errors.Wrap(err, "quantity field")
			}
			l.Quantity = q
		case "1T":
			l.LotCode = value
		case "9D":
			l.DateCode = value
		case "4L":
			l.CountryOfOrigin = value
		}
	}

	if l.CustomerPartNumber == "" && l.ManufacturerPartNumber == "" {
		return Label{}, errors.New("label carries no part number")
	}
	return l, nil
}

// splitIdentifier peels the data identifier off the front of a field: an
// optional digit prefix followed by one uppercase letter.
func splitIdentifier(field string) (string, string) {
	i := 0
	for i < len(field) && field[i] >= '0' && field[i] <= '9' {
		i++
	}
	if i < len(field) && field[i] >= 'A' && field[i] <= 'Z' {
		return field[:i+1], field[i+1:]
	}
	return field, ""
}
