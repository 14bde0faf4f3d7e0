package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Venue is one of the 24 racecourses. Codes are zero-padded two-digit strings.
type Venue struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var venues = map[string]string{
	"01": "桐生", "02": "戸田", "03": "江戸川", "04": "平和島",
	"05": "多摩川", "06": "浜名湖", "07": "蒲郡", "08": "常滑",
	"09": "津", "10": "三国", "11": "びわこ", "12": "住之江",
	"13": "尼崎", "14": "鳴門", "15": "丸亀", "16": "児島",
	"17": "宮島", "18": "徳山", "19": "下関", "20": "若松",
	"21": "芦屋", "22": "福岡", "23": "唐津", "24": "大村",
}

// Venues returns all venues ordered by code.
func Venues() []Venue {
	out := make([]Venue, 0, len(venues))
	for code, name := range venues {
		out = append(out, Venue{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// VenueName returns the display name, or "" for unknown codes.
func VenueName(code string) string {
	return venues[code]
}

// NormalizeVenueCode accepts "1", "01" or " 1" and returns "01".
func NormalizeVenueCode(raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > 24 {
		return "", fmt.Errorf("invalid venue code %q", raw)
	}
	return VenueCode(n), nil
}

// VenueCode formats a venue number as its canonical code.
func VenueCode(n int) string {
	return fmt.Sprintf("%02d", n)
}

// LegacyVenueCode is the unpadded form found in historical odds rows.
func LegacyVenueCode(code string) string {
	return strings.TrimLeft(code, "0")
}
