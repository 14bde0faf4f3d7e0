package parser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/models"
)

// RaceProgram is the pre-race card of one race.
type RaceProgram struct {
	Race    models.Race
	Entries []models.ProgramEntry
}

// ProgramsFile is the parsed content of one B-file.
type ProgramsFile struct {
	Date    models.Date
	Races   []RaceProgram
	Dropped int
}

var (
	bVenueBeginRe = regexp.MustCompile(`^(\d{2})BBGN`)
	bVenueEndRe   = regexp.MustCompile(`^(\d{2})BEND`)
	deadlineRe    = regexp.MustCompile(`締切予定\s*(\d{1,2}):(\d{2})`)
	programRowRe  = regexp.MustCompile(`^([1-6])\s+(\d{4})(.+?)(\d{2})(\S{2})(\d{2})([AB][12])\s+(\d+\.\d{2})\s+(\d+\.\d{2})\s+(\d+\.\d{2})\s+(\d+\.\d{2})\s+(\d{1,3})\s+(\d+\.\d{2})\s+(\d{1,3})\s+(\d+\.\d{2})`)
)

// ParsePrograms parses a B-file. name supplies the race date.
func ParsePrograms(name string, r io.Reader) (*ProgramsFile, error) {
	date, err := DateFromName(name)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	out := &ProgramsFile{Date: date}
	var (
		venue   string
		current *RaceProgram
	)

	flush := func() {
		if current == nil {
			return
		}
		boats := make([]int, 0, len(current.Entries))
		for _, e := range current.Entries {
			boats = append(boats, e.BoatNumber)
		}
		if validBoatSet(boats) {
			out.Races = append(out.Races, *current)
		} else {
			out.Dropped++
		}
		current = nil
	}

	for _, line := range lines {
		if m := bVenueBeginRe.FindStringSubmatch(line); m != nil {
			flush()
			if venue, err = models.NormalizeVenueCode(m[1]); err != nil {
				return nil, fmt.Errorf("%w: %v", errs.ErrParseMalformed, err)
			}
			continue
		}
		if venue == "" {
			continue
		}
		if bVenueEndRe.MatchString(line) {
			flush()
			venue = ""
			continue
		}

		if n, rest, ok := raceHeader(line); ok {
			flush()
			race := models.Race{RaceDate: date, VenueCode: venue, RaceNumber: n, Title: raceTitle(rest)}
			if m := deadlineRe.FindStringSubmatch(rest); m != nil {
				h, _ := strconv.Atoi(m[1])
				min, _ := strconv.Atoi(m[2])
				d := date.Time()
				deadline := time.Date(d.Year(), d.Month(), d.Day(), h, min, 0, 0, clock.JST)
				race.Deadline = &deadline
			}
			current = &RaceProgram{Race: race}
			continue
		}
		if current == nil {
			continue
		}

		if m := programRowRe.FindStringSubmatch(line); m != nil {
			current.Entries = append(current.Entries, programEntry(current.Race, m))
		}
	}
	flush()

	return out, nil
}

func programEntry(race models.Race, m []string) models.ProgramEntry {
	boat, _ := strconv.Atoi(m[1])
	age, _ := strconv.Atoi(m[4])
	motor, _ := strconv.Atoi(m[12])
	boatNo, _ := strconv.Atoi(m[14])
	return models.ProgramEntry{
		RaceDate:        race.RaceDate,
		VenueCode:       race.VenueCode,
		RaceNumber:      race.RaceNumber,
		BoatNumber:      boat,
		RacerID:         m[2],
		RacerName:       compactName(m[3]),
		Age:             age,
		Branch:          m[5],
		Weight:          mustDecimal(m[6]),
		Class:           m[7],
		NationalWinRate: mustDecimal(m[8]),
		NationalTop2:    mustDecimal(m[9]),
		LocalWinRate:    mustDecimal(m[10]),
		LocalTop2:       mustDecimal(m[11]),
		MotorNumber:     motor,
		MotorTop2:       mustDecimal(m[13]),
		BoatNo:          boatNo,
		BoatTop2:        mustDecimal(m[15]),
	}
}
