package exam

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Quota maps category name to the number of questions to draw.
type Quota map[string]int

func (q Quota) Validate() error {
	for name, n := range q {
		if n < 0 {
			return fmt.Errorf("%w: %q has %d", ErrInvalidQuota, name, n)
		}
	}
	return nil
}

// Total is the sum of all requested counts.
func (q Quota) Total() int {
	t := 0
	for _, n := range q {
		t += n
	}
	return t
}

// ParseQuotaValue accepts a non-negative integer. Spreadsheet exports often
// write integers as "3.0", so integral floats are allowed too.
func ParseQuotaValue(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidQuota)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrInvalidQuota, n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidQuota, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidQuota, raw)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidQuota, raw)
	}
	return int(f), nil
}

// ReadQuotaCSV reads "category,quota" rows. A leading header row is skipped.
func ReadQuotaCSV(r io.Reader) (Quota, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	q := Quota{}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("quota csv: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d: want category,quota", ErrInvalidQuota, line)
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return nil, fmt.Errorf("%w: line %d: empty category", ErrInvalidQuota, line)
		}
		if _, dup := q[name]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate category %q", ErrInvalidQuota, line, name)
		}
		n, err := ParseQuotaValue(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		q[name] = n
	}
	return q, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "category")
}
