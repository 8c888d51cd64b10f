package trajectory

import "strings"

// classCompatibility lists the fixed groups of mutually substitutable class
// labels. Detectors flip between these mid-track (a pickup truck labeled as an
// ATV from a distance), so fragment merging treats members of one group as the
// same object class.
var classCompatibility = [][]string{
	{"car", "pickup truck", "truck", "van", "suv", "atv", "utv", "motorcycle"},
	{"person", "pedestrian", "hiker"},
	{"deer", "elk", "moose"},
	{"dog", "coyote", "wolf"},
}

// Compatible reports whether two class labels are identical or jointly belong
// to one class-compatibility group. Comparison is case-insensitive.
func Compatible(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	for _, group := range classCompatibility {
		foundA, foundB := false, false
		for _, class := range group {
			if class == a {
				foundA = true
			}
			if class == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}
