package checksum

// FieldChecksum is the record field that carries the digest. It is never part
// of the digest input.
const FieldChecksum = "checksum"

// AgencyFields is the allow-list hashed for an agency. Presentation fields
// such as display_name and sortable_name stay out.
var AgencyFields = []string{"name", "short_name", "slug", "cfr_references", "children"}

// CorrectionFields is the allow-list hashed for a correction.
var CorrectionFields = []string{
	"id",
	"cfr_references",
	"corrective_action",
	"error_corrected",
	"error_occurred",
	"fr_citation",
	"title",
	"year",
}

// AgencyInput projects a raw agency onto the checksum input. Children are
// carried whole except for their own checksum field. Missing fields become
// null, missing sequences become empty.
func AgencyInput(raw map[string]any) map[string]any {
	children := []any{}
	if list, ok := raw["children"].([]any); ok {
		for _, c := range list {
			if child, ok := c.(map[string]any); ok {
				children = append(children, withoutChecksum(child))
			} else {
				children = append(children, c)
			}
		}
	}

	input := make(map[string]any, len(AgencyFields))
	for _, f := range AgencyFields {
		input[f] = raw[f]
	}
	input["cfr_references"] = valueOr(raw, "cfr_references", []any{})
	input["children"] = children
	return input
}

// CorrectionInput projects a raw correction onto the checksum input.
func CorrectionInput(raw map[string]any) map[string]any {
	input := make(map[string]any, len(CorrectionFields))
	for _, f := range CorrectionFields {
		input[f] = raw[f]
	}
	input["cfr_references"] = valueOr(raw, "cfr_references", []any{})
	return input
}

func AgencyChecksum(raw map[string]any) (string, error) {
	return Digest(AgencyInput(raw))
}

func CorrectionChecksum(raw map[string]any) (string, error) {
	return Digest(CorrectionInput(raw))
}

// HasChecksum reports whether raw already carries a non-empty checksum.
func HasChecksum(raw map[string]any) bool {
	s, ok := raw[FieldChecksum].(string)
	return ok && s != ""
}

// EnsureAgencyChecksums sets the checksum of raw and of each of its children
// when absent, leaving existing checksums untouched. It returns how many
// checksums it computed.
func EnsureAgencyChecksums(raw map[string]any) (int, error) {
	computed := 0
	if list, ok := raw["children"].([]any); ok {
		for _, c := range list {
			child, ok := c.(map[string]any)
			if !ok || HasChecksum(child) {
				continue
			}
			sum, err := AgencyChecksum(child)
			if err != nil {
				return computed, err
			}
			child[FieldChecksum] = sum
			computed++
		}
	}
	if !HasChecksum(raw) {
		sum, err := AgencyChecksum(raw)
		if err != nil {
			return computed, err
		}
		raw[FieldChecksum] = sum
		computed++
	}
	return computed, nil
}

// EnsureCorrectionChecksum sets the checksum of raw when absent and reports
// whether it computed one.
func EnsureCorrectionChecksum(raw map[string]any) (bool, error) {
	if HasChecksum(raw) {
		return false, nil
	}
	sum, err := CorrectionChecksum(raw)
	if err != nil {
		return false, err
	}
	raw[FieldChecksum] = sum
	return true, nil
}

func withoutChecksum(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != FieldChecksum {
			out[k] = v
		}
	}
	return out
}

func valueOr(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
