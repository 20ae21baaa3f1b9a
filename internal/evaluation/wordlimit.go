package evaluation

import (
	"regexp"
	"strconv"
	"strings"
)

type Band struct {
	Name string
	Min  int
	Max  int
}

var (
	BandShort  = Band{Name: "short", Min: 15, Max: 40}
	BandMedium = Band{Name: "medium", Min: 40, Max: 100}
	BandLong   = Band{Name: "long", Min: 80, Max: 180}
)

const (
	underLengthMaxPenalty = 0.30
	overLengthFactor      = 0.95
	overLengthRatio       = 1.5
)

var number = regexp.MustCompile(`\d+`)

// ClassifyBand picks the length band from a descriptor such as "50-60 words".
// The largest number decides; without one the marks decide.
func ClassifyBand(descriptor string, marks float64) Band {
	largest := -1
	for _, m := range number.FindAllString(descriptor, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > largest {
			largest = n
		}
	}
	if largest < 0 {
		switch {
		case marks <= 1:
			return BandShort
		case marks <= 3:
			return BandMedium
		default:
			return BandLong
		}
	}
	switch {
	case largest <= BandShort.Max:
		return BandShort
	case largest <= BandMedium.Max:
		return BandMedium
	default:
		return BandLong
	}
}

// LengthFactor is the multiplier for an answer of the given word count: up to
// 30% off below the band minimum, 5% off beyond 1.5x the maximum.
func LengthFactor(words int, band Band) float64 {
	switch {
	case words < band.Min:
		short := 1 - float64(words)/float64(band.Min)
		return 1 - underLengthMaxPenalty*short
	case float64(words) > overLengthRatio*float64(band.Max):
		return overLengthFactor
	}
	return 1
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}
