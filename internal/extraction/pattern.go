// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extraction

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bcem/hrintake/internal/models"
)

// labelRe finds printed field labels on a CNIC. Longer labels come first so
// "Father Name" is not read as "Name". A label may run straight into digits
// ("CNIC42101-..."); labelledValues rejects matches followed by a letter.
var labelRe = regexp.MustCompile(`(?i)\b(?:` +
	`(?P<fatherOrHusbandName>father\s*/\s*husband(?:'s)?\s+name|father(?:'s)?\s+name|husband(?:'s)?\s+name|s/o|d/o|w/o)` +
	`|(?P<dateOfBirth>date\s+of\s+birth|dob)` +
	`|(?P<dateOfIssue>date\s+of\s+issue)` +
	`|(?P<dateOfExpiry>date\s+of\s+expiry|valid\s+(?:until|thru)|expiry)` +
	`|(?P<cnic>identity\s+(?:number|no)|cnic(?:\s+(?:number|no))?|id\s+number)` +
	`|(?P<gender>gender|sex)` +
	`|(?P<nationality>country\s+of\s+stay|nationality)` +
	`|(?P<name>name)` +
	`)`)

var (
	// Numeric patterns are matched through digitBounded, not \b, so OCR
	// text glued to labels or noise still matches.
	cnicRe       = regexp.MustCompile(`\d{5}-\d{7}-\d`)
	cnicDigitsRe = regexp.MustCompile(`\d{13}`)
	dateRe       = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{4}`)
	genderRe     = regexp.MustCompile(`(?i)\b(male|female)\b`)
)

// PatternStrategy reads fields with local regular expressions. It always
// succeeds and is the terminal stage of a Pipeline.
type PatternStrategy struct{}

// NewPatternStrategy creates a PatternStrategy.
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{}
}

func (s *PatternStrategy) Name() string { return "pattern" }

// Attempt never fails; fields it cannot find are empty.
func (s *PatternStrategy) Attempt(_ context.Context, text string) (models.IdentityRecord, bool) {
	values := labelledValues(text)

	if m := digitBounded(cnicRe, text, 1); len(m) > 0 {
		values["cnic"] = m[0]
	} else if m := digitBounded(cnicDigitsRe, text, 1); len(m) > 0 {
		values["cnic"] = m[0][:5] + "-" + m[0][5:12] + "-" + m[0][12:]
	} else if len(digitBounded(cnicDigitsRe, strings.ReplaceAll(values["cnic"], "-", ""), 1)) == 0 {
		values["cnic"] = ""
	}

	if m := genderRe.FindString(values["gender"]); m != "" {
		values["gender"] = titleCase(m)
	} else if m := genderRe.FindString(text); m != "" {
		values["gender"] = titleCase(m)
	}

	for _, field := range []string{"dateOfBirth", "dateOfIssue", "dateOfExpiry"} {
		if values[field] == "" {
			continue
		}
		if d := digitBounded(dateRe, values[field], 1); len(d) > 0 {
			values[field] = d[0]
		} else {
			values[field] = ""
		}
	}
	// Cards print birth, issue and expiry dates in that order; use position
	// when the labels were not recognised.
	if values["dateOfBirth"] == "" && values["dateOfIssue"] == "" && values["dateOfExpiry"] == "" {
		if dates := digitBounded(dateRe, text, -1); len(dates) == 3 {
			values["dateOfBirth"], values["dateOfIssue"], values["dateOfExpiry"] = dates[0], dates[1], dates[2]
		}
	}

	return models.IdentityFromMap(values), true
}

// labelledValues maps each recognised label to the first non-empty line of
// text between it and the next label.
func labelledValues(text string) map[string]string {
	values := make(map[string]string, len(models.IdentityFields))
	names := labelRe.SubexpNames()
	matches := labelRe.FindAllStringSubmatchIndex(text, -1)

	for i, m := range matches {
		field := ""
		for g := 1; g < len(names); g++ {
			if m[2*g] >= 0 {
				field = names[g]
				break
			}
		}
		if field == "" || values[field] != "" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(text[m[1]:]); unicode.IsLetter(r) {
			continue
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		values[field] = firstLine(text[m[1]:end])
	}
	return values
}

// digitBounded returns up to n matches of re in text (all when n < 0) that
// are not part of a longer run of digits. Letters and punctuation may touch
// a match.
func digitBounded(re *regexp.Regexp, text string, n int) []string {
	var out []string
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		out = append(out, text[loc[0]:loc[1]])
		if n >= 0 && len(out) == n {
			break
		}
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.Trim(line, " \t\r:;,.-|")
		if line != "" {
			return line
		}
	}
	return ""
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
