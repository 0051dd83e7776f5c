package milsym

import (
	"errors"
	"strings"
)

var ErrInvalidSIDC = errors.New("milsym: invalid symbol identification code")

type Affiliation string

const (
	Friend  Affiliation = "friend"
	Hostile Affiliation = "hostile"
	Neutral Affiliation = "neutral"
	Unknown Affiliation = "unknown"
)

// Code is a parsed symbol identification code. Both the letter based
// 2525C form (15 characters) and the numeric 2525D form (20 or 30 digits)
// are accepted.
type Code struct {
	Raw         string
	Affiliation Affiliation
	Anticipated bool
	Dimension   string
}

func Parse(sidc string) (Code, error) {
	s := strings.ToUpper(strings.TrimSpace(sidc))
	switch {
	case isLetterCode(s):
		return parseLetterCode(s), nil
	case isNumberCode(s):
		return parseNumberCode(s), nil
	default:
		return Code{}, ErrInvalidSIDC
	}
}

func isLetterCode(s string) bool {
	if len(s) < 10 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '-' && r != '*' {
			return false
		}
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}

func isNumberCode(s string) bool {
	if len(s) != 20 && len(s) != 30 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseLetterCode(s string) Code {
	c := Code{Raw: s, Affiliation: Unknown}
	switch s[1] {
	case 'F', 'A', 'D', 'M':
		c.Affiliation = Friend
	case 'H', 'S', 'J', 'K':
		c.Affiliation = Hostile
	case 'N', 'L':
		c.Affiliation = Neutral
	}
	c.Dimension = string(s[2])
	c.Anticipated = s[3] == 'A'
	return c
}

func parseNumberCode(s string) Code {
	c := Code{Raw: s, Affiliation: Unknown}
	switch s[3] {
	case '2', '3':
		c.Affiliation = Friend
	case '5', '6':
		c.Affiliation = Hostile
	case '4':
		c.Affiliation = Neutral
	}
	c.Dimension = s[4:6]
	c.Anticipated = s[6] == '1'
	return c
}
