package resource

import (
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/derickschaefer/filings/internal/model"
)

// ─── Language ─────────────────────────────────────────────────────────────────

// alpha3 maps ISO 639-2 codes of official EU languages to ISO 639-1.
var alpha3 = map[string]string{
	"bul": "bg", "ces": "cs", "dan": "da", "deu": "de", "ell": "el",
	"eng": "en", "est": "et", "fin": "fi", "fra": "fr", "gle": "ga",
	"hrv": "hr", "hun": "hu", "ita": "it", "lav": "lv", "lit": "lt",
	"mlt": "mt", "nld": "nl", "pol": "pl", "por": "pt", "ron": "ro",
	"slk": "sk", "slv": "sl", "spa": "es", "swe": "sv",
}

// DeriveLanguage guesses the report language from the last "-" or "_"
// separated part of the package file name, then of the xhtml file name.
// A two-letter part is taken as is and a known three-letter code is
// translated. Country codes commonly used in place of language codes are
// corrected for their own country.
func DeriveLanguage(packageURL, xhtmlURL, country string) string {
	var lang string
	for _, u := range []string{packageURL, xhtmlURL} {
		stem := urlStem(u)
		if stem == "" {
			continue
		}
		parts := strings.Split(strings.ReplaceAll(stem, "_", "-"), "-")
		last := parts[len(parts)-1]
		if !isAlpha(last) {
			continue
		}
		last = strings.ToLower(last)
		if len(last) == 2 {
			lang = last
			break
		}
		if len(last) == 3 {
			if l, ok := alpha3[last]; ok {
				lang = l
				break
			}
		}
	}

	switch {
	case country == "CZ" && lang == "cz":
		lang = "cs"
	case country == "SE" && lang == "se":
		lang = "sv"
	case country == "DK" && lang == "dk":
		lang = "da"
	case country == "NO" && (lang == "nb" || lang == "nn"):
		lang = "no"
	}
	return lang
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ─── Reporting date ───────────────────────────────────────────────────────────

var (
	notNumRe = regexp.MustCompile(`\D`)
	isoDate  = regexp.MustCompile(`\b(\d{4})-(0[1-9]|1[012])-(0[1-9]|[12]\d|3[01])\b`)
)

// DeriveReportingDate returns the last valid YYYY-MM-DD date found in the
// package file name, or fallback when there is none. Non-digit separators
// in the name are treated as dashes.
func DeriveReportingDate(packageURL string, fallback time.Time) time.Time {
	stem := urlStem(packageURL)
	if stem == "" {
		return fallback
	}
	matches := isoDate.FindAllStringSubmatch(notNumRe.ReplaceAllString(stem, "-"), -1)
	if len(matches) == 0 {
		return fallback
	}
	m := matches[len(matches)-1]
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		// Normalised, e.g. 2000-02-31.
		return fallback
	}
	return t
}

// urlStem returns the file name of an absolute URL without its extension.
func urlStem(raw string) string {
	if raw == "" || !strings.Contains(raw, ":") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(u.Path) == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// ─── Validation message fields ────────────────────────────────────────────────

var (
	computedSumRe = regexp.MustCompile(`\bcomputed sum (\S+)`)
	reportedSumRe = regexp.MustCompile(`\breported sum (\S+)`)
	contextIDRe   = regexp.MustCompile(`\bcontext (\S+)`)
	lineItemRe    = regexp.MustCompile(`\bfrom (\S+)`)
	shortRoleRe   = regexp.MustCompile(`\blink role (\S+)`)
	unreportedRe  = regexp.MustCompile(`\bunreportedContributingItems (.+)`)
	commaRe       = regexp.MustCompile(`\s*,\s*`)
	duplicate1Re  = regexp.MustCompile(`\bvalue:\s*(\S+)`)
	duplicate2Re  = regexp.MustCompile(`!=\s+(\S+)`)
)

// deriveMessageFields fills the fields parsed from the text of
// calculation inconsistency and duplicated fact messages.
func deriveMessageFields(m *model.ValidationMessage) {
	switch m.Code {
	case model.CodeCalcInconsistency:
		m.CalcComputedSum = findFloat(computedSumRe, m.Text, "calc_computed_sum")
		m.CalcReportedSum = findFloat(reportedSumRe, m.Text, "calc_reported_sum")
		m.CalcContextID = find(contextIDRe, m.Text)
		m.CalcLineItem = find(lineItemRe, m.Text)
		m.CalcShortRole = shortRole(find(shortRoleRe, m.Text))
		if items := find(unreportedRe, m.Text); items != "" && !strings.EqualFold(items, "none") {
			m.CalcUnreportedItems = commaRe.Split(items, -1)
		}
	case model.CodeDuplicateFacts:
		a := findFloat(duplicate1Re, m.Text, "duplicate_*")
		b := findFloat(duplicate2Re, m.Text, "duplicate_*")
		if a != nil && b != nil {
			hi, lo := max(*a, *b), min(*a, *b)
			m.DuplicateGreater, m.DuplicateLesser = &hi, &lo
		}
	}
}

func find(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func findFloat(re *regexp.Regexp, s, name string) *float64 {
	raw := find(re, s)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		slog.Warn("could not parse number in validation message", "field", name, "value", raw)
		return nil
	}
	return &v
}

// shortRole reduces a role URI to its last path element.
func shortRole(role string) string {
	if role == "" {
		return ""
	}
	u, err := url.Parse(role)
	if err != nil || strings.TrimSpace(u.Path) == "" {
		return role
	}
	if last := path.Base(u.Path); strings.TrimSpace(last) != "" && last != "/" {
		return last
	}
	return role
}
