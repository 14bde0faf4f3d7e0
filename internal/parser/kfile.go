package parser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
	"github.com/shopspring/decimal"
)

// RaceResult is everything a K-file says about one race.
type RaceResult struct {
	Race    models.Race
	Entries []models.ResultEntry
	Payoffs []models.Payoff
}

// ResultsFile is the parsed content of one K-file.
type ResultsFile struct {
	Date    models.Date
	Races   []RaceResult
	Dropped int // races discarded for failing the row invariants
}

var (
	kVenueBeginRe = regexp.MustCompile(`^(\d{2})KBGN`)
	kVenueEndRe   = regexp.MustCompile(`^(\d{2})KEND`)
	resultRowRe   = regexp.MustCompile(`^(0[1-6]|[FKLSE]\d?|[転落沈妨欠失エ])\s+([1-6])\s+(\d{4})\s+(.+?)\s+(\d{1,3})\s+(\d{1,3})(?:\s+(.*))?$`)
	exhibitionRe  = regexp.MustCompile(`^\d\.\d{2}$`)
	courseRe      = regexp.MustCompile(`^[1-6]$`)
	timingRe      = regexp.MustCompile(`^(?:[FL]?\d?\.\d{2}|[FL])$`)
	raceTimeRe    = regexp.MustCompile(`^(\d)\.(\d{2})\.(\d)$`)
	singleComboRe = regexp.MustCompile(`^[1-6]$`)
	multiComboRe  = regexp.MustCompile(`^[1-6](?:[-=][1-6]){1,2}$`)
)

// payoff labels after width folding
var payoffLabels = []struct {
	label string
	kind  models.BetKind
}{
	{"単勝", models.BetTansho},
	{"複勝", models.BetFukusho},
	{"2連単", models.BetNirentan},
	{"2連複", models.BetNirenpuku},
	{"拡連複", models.BetWide},
	{"3連単", models.BetSanrentan},
	{"3連複", models.BetSanrenpuku},
}

const maxContinuationRows = 3

type kRace struct {
	result   RaceResult
	void     bool
	kind     models.BetKind
	kindRows int
}

// ParseResults parses a K-file. name supplies the race date.
func ParseResults(name string, r io.Reader) (*ResultsFile, error) {
	date, err := DateFromName(name)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	out := &ResultsFile{Date: date}
	var (
		venue string
		order []int
		races map[int]*kRace
	)

	flush := func() {
		for _, n := range order {
			kr := races[n]
			res := kr.result
			res.Race.Canceled = kr.void
			if kr.void {
				res.Entries, res.Payoffs = nil, nil
				out.Races = append(out.Races, res)
				continue
			}
			if len(res.Entries) == 0 {
				continue
			}
			if !validResultRows(res.Entries) {
				out.Dropped++
				continue
			}
			out.Races = append(out.Races, res)
		}
		order, races = nil, nil
	}

	var current *kRace
	for _, line := range lines {
		if m := kVenueBeginRe.FindStringSubmatch(line); m != nil {
			flush()
			venue, err = models.NormalizeVenueCode(m[1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errs.ErrParseMalformed, err)
			}
			races = map[int]*kRace{}
			current = nil
			continue
		}
		if venue == "" {
			continue
		}
		if kVenueEndRe.MatchString(line) {
			flush()
			venue, current = "", nil
			continue
		}

		if n, rest, ok := raceHeader(line); ok {
			kr, seen := races[n]
			if !seen {
				kr = &kRace{result: RaceResult{Race: models.Race{RaceDate: date, VenueCode: venue, RaceNumber: n}}}
				races[n] = kr
				order = append(order, n)
			}
			if title := raceTitle(rest); title != "" {
				kr.result.Race.Title = title
			}
			if isVoidMarker(rest) {
				kr.void = true
			}
			kr.kind, kr.kindRows = "", 0
			current = kr
			continue
		}
		if current == nil {
			continue
		}

		if m := resultRowRe.FindStringSubmatch(line); m != nil {
			if e, ok := resultEntry(current.result.Race, m); ok {
				current.result.Entries = append(current.result.Entries, e)
			}
			continue
		}
		if isVoidMarker(line) {
			current.void = true
			continue
		}
		current.payoffLine(line)
	}
	flush()

	return out, nil
}

func resultEntry(race models.Race, m []string) (models.ResultEntry, bool) {
	rank, dq, ok := models.ParseRankToken(m[1])
	if !ok {
		return models.ResultEntry{}, false
	}
	boat, _ := strconv.Atoi(m[2])
	e := models.ResultEntry{
		RaceDate:         race.RaceDate,
		VenueCode:        race.VenueCode,
		RaceNumber:       race.RaceNumber,
		BoatNumber:       boat,
		Rank:             rank,
		Disqualification: dq,
		RacerID:          m[3],
		RacerName:        compactName(m[4]),
	}
	parseResultTail(m[7], &e)
	return e, true
}

// parseResultTail reads exhibition time, course, start timing and race time in order.
// Missing values are printed as "." and skipped.
func parseResultTail(tail string, e *models.ResultEntry) {
	phase := 0
	for _, tok := range strings.Fields(tail) {
		switch {
		case phase == 0 && exhibitionRe.MatchString(tok):
			v := mustDecimal(tok)
			e.ExhibitionTime = &v
			phase = 1
		case phase <= 1 && courseRe.MatchString(tok):
			c, _ := strconv.Atoi(tok)
			e.StartCourse = &c
			phase = 2
		case phase == 2 && timingRe.MatchString(tok):
			e.StartTiming = tok
			phase = 3
		case phase >= 2 && raceTimeRe.MatchString(tok):
			m := raceTimeRe.FindStringSubmatch(tok)
			min, _ := strconv.Atoi(m[1])
			sec, _ := strconv.Atoi(m[2])
			tenth, _ := strconv.Atoi(m[3])
			v := decimal.NewFromInt(int64(min*60 + sec)).Add(decimal.New(int64(tenth), -1))
			e.RaceTime = &v
			phase = 4
		}
	}
}

func validResultRows(entries []models.ResultEntry) bool {
	boats := make([]int, 0, len(entries))
	ranks := map[int]bool{}
	for _, e := range entries {
		boats = append(boats, e.BoatNumber)
		if e.Rank > 0 {
			if ranks[e.Rank] {
				return false
			}
			ranks[e.Rank] = true
		}
	}
	return validBoatSet(boats)
}

// payoffLine handles a labelled payoff row or a continuation of fukusho/wide.
func (kr *kRace) payoffLine(line string) {
	for _, pl := range payoffLabels {
		if strings.HasPrefix(line, pl.label) {
			kr.kind, kr.kindRows = pl.kind, 1
			kr.addPayoffs(pl.kind, strings.TrimPrefix(line, pl.label))
			return
		}
	}
	if kr.kind != models.BetFukusho && kr.kind != models.BetWide {
		return
	}
	if kr.kindRows >= maxContinuationRows || kr.addPayoffs(kr.kind, line) == 0 {
		kr.kind, kr.kindRows = "", 0
		return
	}
	kr.kindRows++
}

func (kr *kRace) addPayoffs(kind models.BetKind, rest string) int {
	combo := multiComboRe
	if kind.Arity() == 1 {
		combo = singleComboRe
	}

	added := 0
	tokens := strings.Fields(rest)
	for i := 0; i < len(tokens); {
		tok := tokens[i]
		if tok == "人気" && i+1 < len(tokens) && added > 0 {
			if pop, err := strconv.Atoi(tokens[i+1]); err == nil {
				last := &kr.result.Payoffs[len(kr.result.Payoffs)-1]
				last.Popularity = &pop
			}
			i += 2
			continue
		}
		if combo.MatchString(tok) && i+1 < len(tokens) {
			amount, ok := parseAmount(tokens[i+1])
			canonical, err := models.CanonicalCombination(kind, tok)
			if ok && err == nil {
				race := kr.result.Race
				kr.result.Payoffs = append(kr.result.Payoffs, models.Payoff{
					RaceDate:     race.RaceDate,
					VenueCode:    race.VenueCode,
					RaceNumber:   race.RaceNumber,
					BetKind:      kind,
					Combination:  canonical,
					PayoutPer100: amount,
				})
				added++
				i += 2
				continue
			}
		}
		i++
	}
	return added
}
