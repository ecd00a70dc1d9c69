package filter

import (
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// platforms is the vocabulary of messaging and social networks users try to move
// a conversation to. Longer names come first so alternation prefers "instagram"
// over "insta" and "snapchat" over "snap".
const platforms = `instagram|insta|ig|twitter|x\.com|telegram|tg|whatsapp|wa|discord|snapchat|snap|tiktok|facebook|fb|messenger|linkedin|wechat|line|viber|signal|skype`

const englishDigits = `zero|one|two|three|four|five|six|seven|eight|nine`

const turkishDigits = `sıfır|bir|iki|üç|dört|beş|altı|yedi|sekiz|dokuz`

// rule is one detector. keep, when set, is consulted for every match and lets a
// span through unredacted; it covers context RE2 cannot express (no lookaround).
type rule struct {
	name string
	re   *regexp.Regexp
	keep func(text string, start, end int) bool
}

func buildRules(siteDomains []string) []rule {
	defs := []struct {
		name    string
		pattern string
		keep    func(text string, start, end int) bool
	}{
		{name: "local_phone", pattern: `(?:(?:\+?90|0)[\s.-]?)?5\d{2}[\s.-]?\d{3}[\s.-]?\d{2}[\s.-]?\d{2}`},
		{name: "international_phone", pattern: `\+?\d[\d\s.-]{8,13}\d`},
		{name: "dialing_code", pattern: `\+(?:1|7|20|27|30|31|32|33|34|39|40|41|43|44|45|46|47|48|49|61|81|82|86|90|91|92|966|971|994)[\s.-]?\d{6,12}`},
		{name: "email", pattern: `[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`},
		{name: "obfuscated_email", pattern: `[a-z0-9._%+-]+(?:\s*＠\s*|\s*[(\[]\s*at\s*[)\]]\s*|\s+at\s+)[a-z0-9-]+(?:(?:\.|\s*[(\[]\s*dot\s*[)\]]\s*|\s+dot\s+)[a-z0-9-]+)+`},
		{name: "platform_handle", pattern: `\b(?:` + platforms + `)\b\s*[:/=-]?\s*@?[\w./]{3,30}`},
		{name: "at_handle", pattern: `@[\w.]{3,30}`},
		{name: "solicitation", pattern: `\b(?:hit\s+me\s+up\s+on|dm\s+me(?:\s+on)?|message\s+me\s+on|find\s+me\s+on|add\s+me\s+on|follow\s+me\s+on)\s*(?:` + platforms + `)\b`},
		{name: "url", pattern: `(?:https?://)?(?:www\.)?[a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)*\.[a-z]{2,}(?:/\S*)?`, keep: siteLink(siteDomains)},
		{name: "english_digit_words", pattern: `\b(?:` + englishDigits + `)(?:[\s,.-]+(?:` + englishDigits + `)){2,}\b`},
		{name: "turkish_digit_words", pattern: `(?:` + turkishDigits + `)`, keep: notStandaloneWord},
		{name: "contact_me", pattern: `\bcontact\s+me(?:\s+(?:at|on|via|through)\b|\s*@)`},
		{name: "possessive_solicitation", pattern: `\b(?:my|send|here(?:'|’)?s\s+my)\s+(?:number|phone|cell|mobile|email|mail|insta|ig|telegram|whatsapp|discord|snap|handle|username)\b`},
		{name: "leading_zero_number", pattern: `\b0\d{9,11}\b`},
		{name: "grouped_digits", pattern: `\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`},
	}

	rules := make([]rule, 0, len(defs))
	for _, d := range defs {
		re, err := regexp.Compile(`(?i)` + d.pattern)
		if err != nil {
			log.Printf("filter: dropping rule %s: %v", d.name, err)
			continue
		}
		rules = append(rules, rule{name: d.name, re: re, keep: d.keep})
	}
	return rules
}

// redact replaces every non-kept match with the placeholder. The bool reports
// whether anything was replaced.
func (r rule) redact(text string) (string, bool) {
	locs := r.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, false
	}

	var b strings.Builder
	last := 0
	replaced := false
	for _, loc := range locs {
		if r.keep != nil && r.keep(text, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(Placeholder)
		last = loc[1]
		replaced = true
	}
	if !replaced {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

// siteLink keeps links that point back at the marketplace itself.
func siteLink(domains []string) func(text string, start, end int) bool {
	lowered := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			lowered = append(lowered, d)
		}
	}
	return func(text string, start, end int) bool {
		token := strings.ToLower(text[start:end])
		for _, d := range lowered {
			if strings.Contains(token, d) {
				return true
			}
		}
		return false
	}
}

// notStandaloneWord keeps a Turkish digit word that is part of a longer word or
// is not followed by whitespace. \b in RE2 is ASCII-only, so "üç" needs this.
func notStandaloneWord(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
			return true
		}
	}
	next, size := utf8.DecodeRuneInString(text[end:])
	return size == 0 || !unicode.IsSpace(next)
}
