package numbers

// ExtractCodes scans message bodies for candidate one-time codes: runs
// of exactly six digits. Codes are deduplicated and reported in order
// of first appearance across the bodies. Longer digit runs (phone
// numbers, timestamps) are not codes and are skipped.
func ExtractCodes(bodies []string) []string {
	var codes []string
	seen := make(map[string]struct{})
	for _, body := range bodies {
		for _, code := range digitRuns(body, 6) {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}

// digitRuns returns maximal digit runs of exactly n characters.
func digitRuns(s string, n int) []string {
	var runs []string
	start := -1
	for i := 0; i <= len(s); i++ {
		isDigit := i < len(s) && s[i] >= '0' && s[i] <= '9'
		if isDigit {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if i-start == n {
				runs = append(runs, s[start:i])
			}
			start = -1
		}
	}
	return runs
}
