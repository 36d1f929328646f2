package filter

// Rules configures the engine. Every rule can be toggled independently;
// the evaluation order is fixed (see Filter).
type Rules struct {
	DuplicatePhone bool `json:"duplicate_phone"`
	LargeCompany   bool `json:"large_company"`
	Keyword        bool `json:"keyword"`
	Industry       bool `json:"industry"`
	Location       bool `json:"location"`
	PhonePrefix    bool `json:"phone_prefix"`

	// LargeCompanyThreshold excludes companies at or above this headcount.
	LargeCompanyThreshold int `json:"large_company_threshold"`

	// ExtraKeywords extends the default exclusion keyword set.
	ExtraKeywords []string `json:"extra_keywords,omitempty"`

	ExcludeKeywords      []string `json:"exclude_keywords,omitempty"`
	ExcludeIndustries    []string `json:"exclude_industries,omitempty"`
	ExcludeLocations     []string `json:"exclude_locations,omitempty"`
	ExcludePhonePrefixes []string `json:"exclude_phone_prefixes,omitempty"`
}

// DefaultRules enables everything with the stock term sets.
func DefaultRules() Rules {
	return Rules{
		DuplicatePhone:        true,
		LargeCompany:          true,
		Keyword:               true,
		Industry:              true,
		Location:              true,
		PhonePrefix:           true,
		LargeCompanyThreshold: 1001,
		ExcludeKeywords: []string{
			"人材派遣",
			"人材紹介",
			"職業紹介",
			"派遣",
			"アウトソーシング",
		},
		ExcludeIndustries: []string{
			"パチンコ",
			"風俗",
			"ナイトワーク",
		},
		ExcludeLocations: []string{
			"沖縄",
		},
		// toll-free and VoIP ranges
		ExcludePhonePrefixes: []string{
			"0120",
			"0800",
			"050",
		},
	}
}

// keywords returns the configured exclusion keywords plus user extras.
func (r Rules) keywords() []string {
	if len(r.ExtraKeywords) == 0 {
		return r.ExcludeKeywords
	}
	out := make([]string, 0, len(r.ExcludeKeywords)+len(r.ExtraKeywords))
	out = append(out, r.ExcludeKeywords...)
	out = append(out, r.ExtraKeywords...)
	return out
}
