// Package artifact defines the fixed artifact kinds a curation run cares
// about and the two filename-matching passes that locate them: the glob
// locator used during staging and the substring re-resolution pass used
// after an external tool renames its outputs.
package artifact

import "strings"

// Kind identifies one artifact type. Every kind maps to exactly one
// canonical destination filename stem.
type Kind int

const (
	T1 Kind = iota
	FLAIR
	Magnitude
	QSM
	LesionMask
)

// Kinds lists every artifact kind in canonical order.
var Kinds = [...]Kind{T1, FLAIR, Magnitude, QSM, LesionMask}

func (k Kind) String() string {
	names := [...]string{"T1", "FLAIR", "magnitude", "QSM", "lesion-mask"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// ParseKind maps a kind name as produced by String back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Stem returns the canonical filename stem for the kind. The staged file is
// Stem + the source file's extension.
func (k Kind) Stem() string {
	stems := [...]string{"T1", "T2_FLAIR", "mag", "QSM", "lesion_mask"}
	if int(k) < len(stems) {
		return stems[k]
	}
	return "unknown"
}

// Required reports whether a staging manifest is incomplete without this
// kind. The lesion mask comes out of a results archive that may legitimately
// be absent.
func (k Kind) Required() bool {
	return k != LesionMask
}

// Ext returns the image extension of name, keeping compound NIfTI suffixes
// intact: "scan.nii.gz" yields ".nii.gz", "mask.nii" yields ".nii".
// The distinction must round-trip unchanged through staging.
func Ext(name string) string {
	if strings.HasSuffix(name, ".nii.gz") {
		return ".nii.gz"
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// CanonicalName returns the staged filename for kind given the source
// file's name: the kind's stem plus the source extension.
func CanonicalName(k Kind, srcName string) string {
	return k.Stem() + Ext(srcName)
}
