// Package strings provides string slice utilities.
package strings

// Dedupe removes repeated values from a slice, keeping the first occurrence.
// Values are compared exactly, so keys differing only in whitespace or case
// stay distinct.
//
// Example:
//
//	Dedupe([]string{"a", "b", "a", " a"})
//	// Returns: []string{"a", "b", " a"}
func Dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
