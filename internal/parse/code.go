// Package parse reads human-entered work-order codes.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	codeRe  = regexp.MustCompile(`^([A-Z]+)-(\d{1,9})-(\d{4})$`)
	spaceRe = regexp.MustCompile(`\s*-\s*`)
)

// WorkOrderCode is the structured form of a code such as OS-003-2025.
type WorkOrderCode struct {
	Prefix string
	Value  int64
	Year   int
}

// String renders the canonical, zero-padded form.
func (c WorkOrderCode) String() string {
	return fmt.Sprintf("%s-%03d-%d", c.Prefix, c.Value, c.Year)
}

// ParseWorkOrderCode accepts codes typed by people: case and whitespace
// around the dashes are ignored, and short values such as "os-3-2025" are
// accepted and normalized.
func ParseWorkOrderCode(raw string) (WorkOrderCode, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = spaceRe.ReplaceAllString(s, "-")

	m := codeRe.FindStringSubmatch(s)
	if m == nil {
		return WorkOrderCode{}, fmt.Errorf("unable to parse work order code: %q", raw)
	}
	value, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || value == 0 {
		return WorkOrderCode{}, fmt.Errorf("invalid sequence value in work order code: %q", raw)
	}
	year, _ := strconv.Atoi(m[3])
	return WorkOrderCode{Prefix: m[1], Value: value, Year: year}, nil
}
