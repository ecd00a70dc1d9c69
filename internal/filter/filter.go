// Package filter redacts attempts to share contact information (phone numbers,
// email addresses, social handles, off-site links) from chat messages.
//
// A Filter holds only compiled, read-only rules and is safe for concurrent use.
package filter

const (
	// Placeholder replaces every redacted span.
	Placeholder = "[removed]"

	// ReasonContactInfo is reported whenever any rule matched.
	ReasonContactInfo = "Contact information detected"

	// DefaultSiteDomain is the marketplace's own domain; links to it are allowed.
	DefaultSiteDomain = "tcgvault.com"
)

// Result is the outcome of filtering a single message.
type Result struct {
	WasFiltered bool   `json:"isFiltered"`
	Text        string `json:"filteredContent"`
	Reason      string `json:"reason,omitempty"`
}

// Filter applies an ordered list of detection rules.
type Filter struct {
	rules []rule
}

// New builds a Filter. Links containing any of siteDomains are not redacted;
// with no domains given DefaultSiteDomain is used.
func New(siteDomains ...string) *Filter {
	if len(siteDomains) == 0 {
		siteDomains = []string{DefaultSiteDomain}
	}
	return &Filter{rules: buildRules(siteDomains)}
}

var defaultFilter = New()

// Apply runs text through the default Filter.
func Apply(text string) Result {
	return defaultFilter.Apply(text)
}

// Apply folds text through every rule in order. Each rule sees the output of
// the previous one, so a span replaced early cannot be matched again later.
func (f *Filter) Apply(text string) Result {
	res := Result{Text: text}
	if text == "" {
		return res
	}

	for _, r := range f.rules {
		redacted, hit := r.redact(res.Text)
		if !hit {
			continue
		}
		res.Text = redacted
		res.WasFiltered = true
		res.Reason = ReasonContactInfo
	}
	return res
}

// Rules returns the names of the active rules in evaluation order.
func (f *Filter) Rules() []string {
	names := make([]string, len(f.rules))
	for i, r := range f.rules {
		names[i] = r.name
	}
	return names
}
