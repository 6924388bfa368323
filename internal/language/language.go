package language

import "strings"

type entry struct {
	code2   string   // ISO 639-1
	code3   string   // ISO 639-2 primary
	alt3    string   // ISO 639-2 bibliographic alternate ("fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms ("english")
	aligned bool     // A default forced-alignment model exists for this code
}

// The table covers languages narration texts realistically arrive in. The
// aligned flag tracks wav2vec2 default-model availability in the aligner;
// languages without one still transcribe but fall back to segment-level
// timings, which cue placement cannot use.
var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}, true},
	{"es", "spa", "", "Spanish", []string{"spanish"}, true},
	{"fr", "fra", "fre", "French", []string{"french"}, true},
	{"de", "deu", "ger", "German", []string{"german"}, true},
	{"it", "ita", "", "Italian", []string{"italian"}, true},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}, true},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}, true},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}, true},
	{"ko", "kor", "", "Korean", []string{"korean"}, true},
	{"zh", "zho", "chi", "Chinese", []string{"chinese"}, true},
	{"ru", "rus", "", "Russian", []string{"russian"}, true},
	{"uk", "ukr", "", "Ukrainian", []string{"ukrainian"}, true},
	{"pl", "pol", "", "Polish", []string{"polish"}, true},
	{"cs", "ces", "cze", "Czech", []string{"czech"}, true},
	{"ar", "ara", "", "Arabic", []string{"arabic"}, true},
	{"hi", "hin", "", "Hindi", []string{"hindi"}, true},
	{"tr", "tur", "", "Turkish", []string{"turkish"}, true},
	{"el", "ell", "gre", "Greek", []string{"greek"}, true},
	{"da", "dan", "", "Danish", []string{"danish"}, true},
	{"fi", "fin", "", "Finnish", []string{"finnish"}, true},
	{"hu", "hun", "", "Hungarian", []string{"hungarian"}, true},
	{"vi", "vie", "", "Vietnamese", []string{"vietnamese"}, true},
	{"sv", "swe", "", "Swedish", []string{"swedish"}, false},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}, true},
	{"ro", "ron", "rum", "Romanian", []string{"romanian"}, true},
	{"he", "heb", "", "Hebrew", []string{"hebrew"}, true},
	{"fa", "fas", "per", "Persian", []string{"persian", "farsi"}, true},
	{"id", "ind", "", "Indonesian", []string{"indonesian"}, false},
	{"th", "tha", "", "Thai", []string{"thai"}, false},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// ToISO2 converts any recognized language code or word form to ISO 639-1.
// Unrecognized 2-letter codes pass through so the aligner can attempt
// languages the table does not list. Other unrecognized input returns "".
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable name for any recognized code, or the
// uppercased input when the code is not in the table.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// AlignmentSupported reports whether a default forced-alignment model exists
// for the language. Unrecognized codes report false; the aligner may still
// accept them, but status surfaces should not promise word timings.
func AlignmentSupported(code string) bool {
	e := lookup(code)
	return e != nil && e.aligned
}
