// Package nin validates and decodes national identity numbers.
//
// A number is 11 digits: YYMMDD, a 3-digit sequence and a 2-digit checksum.
// The checksum is 97 - (N mod 97) where N is the first 9 digits, prefixed by a
// "2" (N + 2,000,000,000) for people born in or after 2000. Only those two
// centuries are considered.
package nin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Length = 11

	post2000Offset = 2_000_000_000
)

var (
	ErrInvalidLength    = errors.New("identity number must contain exactly 11 digits")
	ErrInvalidChecksum  = errors.New("identity number checksum does not match")
	ErrInvalidBirthDate = errors.New("identity number does not encode a real birth date")
)

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

// Identity is the decoded content of a valid number.
type Identity struct {
	Number    string
	BirthDate time.Time
	Sex       Sex
}

// Normalize strips every non-digit character.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether raw normalizes to 11 digits whose checksum matches
// either century branch. It does not check the calendar date.
func Validate(raw string) bool {
	base, check, ok := split(Normalize(raw))
	if !ok {
		return false
	}
	return matchesPost2000(base, check) || matchesPre2000(base, check)
}

// DecodeBirthDate resolves the century from the checksum branch (post-2000
// first) and returns the birth date at UTC midnight. It returns false when no
// branch validates or when the encoded month/day is not a real date.
func DecodeBirthDate(raw string) (time.Time, bool) {
	digits := Normalize(raw)
	base, check, ok := split(digits)
	if !ok {
		return time.Time{}, false
	}

	var century int
	switch {
	case matchesPost2000(base, check):
		century = 2000
	case matchesPre2000(base, check):
		century = 1900
	default:
		return time.Time{}, false
	}

	yy, _ := strconv.Atoi(digits[0:2])
	mm, _ := strconv.Atoi(digits[2:4])
	dd, _ := strconv.Atoi(digits[4:6])

	year := century + yy
	d := time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != mm || d.Day() != dd {
		return time.Time{}, false
	}
	return d, true
}

// DecodeSex reads the parity of the sequence fragment: odd is male, even is
// female. Call it only on a number that passed Validate.
func DecodeSex(raw string) Sex {
	digits := Normalize(raw)
	if len(digits) < 9 {
		return SexFemale
	}
	seq, _ := strconv.Atoi(digits[6:9])
	if seq%2 == 1 {
		return SexMale
	}
	return SexFemale
}

// Decode validates raw and returns its normalized number, birth date and sex.
func Decode(raw string) (Identity, error) {
	digits := Normalize(raw)
	if len(digits) != Length {
		return Identity{}, ErrInvalidLength
	}
	if !Validate(digits) {
		return Identity{}, ErrInvalidChecksum
	}
	birth, ok := DecodeBirthDate(digits)
	if !ok {
		return Identity{}, ErrInvalidBirthDate
	}
	return Identity{
		Number:    digits,
		BirthDate: birth,
		Sex:       DecodeSex(digits),
	}, nil
}

// Generate builds a valid number for a birth date and a sequence in 1..998.
// Birth years outside 1900..2099 are rejected.
func Generate(birth time.Time, sequence int) (string, error) {
	year := birth.Year()
	if year < 1900 || year > 2099 {
		return "", fmt.Errorf("birth year %d outside supported range", year)
	}
	if sequence < 1 || sequence > 998 {
		return "", fmt.Errorf("sequence %d outside 1..998", sequence)
	}

	head := fmt.Sprintf("%02d%02d%02d%03d", year%100, int(birth.Month()), birth.Day(), sequence)
	base, _ := strconv.ParseInt(head, 10, 64)
	if year >= 2000 {
		base += post2000Offset
	}
	return fmt.Sprintf("%s%02d", head, checksum(base)), nil
}

func split(digits string) (base, check int64, ok bool) {
	if len(digits) != Length {
		return 0, 0, false
	}
	base, err := strconv.ParseInt(digits[:9], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	check, err = strconv.ParseInt(digits[9:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return base, check, true
}

func checksum(n int64) int64 {
	return 97 - n%97
}

func matchesPre2000(base, check int64) bool {
	return checksum(base) == check
}

func matchesPost2000(base, check int64) bool {
	return checksum(post2000Offset+base) == check
}
