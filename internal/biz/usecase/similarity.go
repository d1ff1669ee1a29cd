package usecase

// Similarity computes the normalized Levenshtein closeness of two strings as
// a percentage in [0,100]. Both strings empty yields 100. The comparison is
// rune-level so Cyrillic message text scores the same as Latin.
func Similarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	la := len(ra)
	lb := len(rb)

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 100
	}

	// Classic DP matrix. Inputs are short chat messages, so quadratic
	// space is fine.
	matrix := make([][]int, la+1)
	for i := range matrix {
		matrix[i] = make([]int, lb+1)
		matrix[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := matrix[i-1][j] + 1
			ins := matrix[i][j-1] + 1
			sub := matrix[i-1][j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			matrix[i][j] = min
		}
	}

	distance := matrix[la][lb]
	return float64(maxLen-distance) / float64(maxLen) * 100
}
