package similarity

// Ratio returns the Ratcliff/Obershelp similarity of a and b: 2*M/T, where M is
// the total size of the matching blocks found by recursively taking the
// longest common substring, and T is the combined rune length.
//
// The block search breaks ties toward the earliest position, which makes the
// raw measure order-dependent on some inputs; Ratio reports the larger of the
// two orderings so that Ratio(a, b) == Ratio(b, a). Two empty strings score
// 0.0: absent data is not evidence of a match.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	total := float64(len(ra) + len(rb))
	forward := 2 * float64(matchedRunes(ra, rb)) / total
	backward := 2 * float64(matchedRunes(rb, ra)) / total
	if backward > forward {
		return backward
	}
	return forward
}

type span struct{ alo, ahi, blo, bhi int }

// matchedRunes sums the sizes of all matching blocks between a and b.
func matchedRunes(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b2j, s)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside s, choosing
// the smallest i and then the smallest j among blocks of equal size.
func longestMatch(a []rune, b2j map[rune][]int, s span) (besti, bestj, bestk int) {
	besti, bestj = s.alo, s.blo
	j2len := map[int]int{}
	for i := s.alo; i < s.ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < s.blo {
				continue
			}
			if j >= s.bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestk
}
