/**
 * @description
 * Parsers for the official fixed-width text files.
 * K-files carry results and payoffs, B-files carry the pre-race program.
 * Input is Shift-JIS; lines are decoded and width-folded (full-width digits,
 * letters and spaces become ASCII) before matching.
 *
 * @dependencies
 * - golang.org/x/text/encoding/japanese
 * - golang.org/x/text/width
 */

package parser

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

var (
	fileNameRe   = regexp.MustCompile(`(?i)^([KB])(\d{2})(\d{2})(\d{2})\.TXT$`)
	raceHeaderRe = regexp.MustCompile(`^(\d{1,2})R(?:\s+(.*))?$`)
	titleRe      = regexp.MustCompile(`^(.*?)\s*H\d{3,4}m`)
)

// DateFromName derives the race date from names like K250705.TXT.
func DateFromName(name string) (models.Date, error) {
	m := fileNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", fmt.Errorf("%w: unexpected file name %q", errs.ErrParseMalformed, name)
	}
	century := "20"
	if m[2] >= "50" {
		century = "19"
	}
	return models.ParseDate(century + m[2] + m[3] + m[4])
}

// readLines decodes Shift-JIS input into folded, trimmed lines.
func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(transform.NewReader(r, japanese.ShiftJIS.NewDecoder()))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(width.Fold.String(sc.Text())))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read shift-jis input: %w", err)
	}
	return lines, nil
}

// raceHeader recognises "<n>R ..." lines and returns the race number and remainder.
func raceHeader(line string) (int, string, bool) {
	m := raceHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 12 {
		return 0, "", false
	}
	return n, m[2], true
}

func raceTitle(rest string) string {
	if m := titleRe.FindStringSubmatch(rest); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func isVoidMarker(s string) bool {
	return strings.Contains(s, "中止") || strings.Contains(s, "不成立")
}

// compactName drops the padding spaces inside racer names.
func compactName(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseAmount reads "2,650", "¥2650" or "2650円".
func parseAmount(s string) (int, bool) {
	s = strings.NewReplacer(",", "", "¥", "", "\\", "", "円", "").Replace(strings.TrimSpace(s))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// validBoatSet reports whether boats are exactly 1..6 without repeats.
func validBoatSet(boats []int) bool {
	if len(boats) != 6 {
		return false
	}
	seen := [7]bool{}
	for _, b := range boats {
		if b < 1 || b > 6 || seen[b] {
			return false
		}
		seen[b] = true
	}
	return true
}
