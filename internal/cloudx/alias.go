package cloudx

// Schema drift: earlier releases wrote different record-type and field
// names. Lookups try an explicit ordered list of candidates instead of
// any reflective trickery; the first present name wins.

// Current record type names, written on encode.
const (
	TypeProfile = "Profile"
	TypeAction  = "BabyAction"
)

var profileTypeAliases = []string{TypeProfile, "BabyProfile", "ChildProfile"}
var actionTypeAliases = []string{TypeAction, "Action", "BabyEvent"}

// fieldAliases maps a canonical field name to the ordered candidate
// names tried on decode. The canonical name is always written on encode
// and always tried first.
var fieldAliases = map[string][]string{
	"name":           {"name", "babyName"},
	"birthDate":      {"birthDate", "birthday"},
	"updatedAt":      {"updatedAt", "lastEdited"},
	"start":          {"start", "startDate"},
	"end":            {"end", "endDate"},
	"category":       {"category", "actionType"},
	"bottleVolumeML": {"bottleVolumeML", "bottleVolume"},
}

// typeMatches reports whether got names the wanted record class,
// tolerating historical aliases.
func typeMatches(got string, aliases []string) bool {
	for _, a := range aliases {
		if got == a {
			return true
		}
	}
	return false
}

// lookupField returns the first candidate name present in fields.
func lookupField(fields map[string]any, canonical string) (any, bool) {
	candidates, ok := fieldAliases[canonical]
	if !ok {
		candidates = []string{canonical}
	}
	for _, name := range candidates {
		if v, ok := fields[name]; ok {
			return v, true
		}
	}
	return nil, false
}
