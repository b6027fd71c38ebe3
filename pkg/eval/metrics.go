package eval

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Ranking metrics treat ids as sets: a relevant id retrieved twice counts once.
// With no relevant ids every ranking metric is 0, which callers must read as
// "undefined" rather than "wrong".

func topK(retrieved []int64, k int) []int64 {
	if k < len(retrieved) {
		return retrieved[:k]
	}
	return retrieved
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func hitsAtK(retrieved, relevant []int64, k int) int {
	rel := idSet(relevant)
	seen := make(map[int64]struct{})
	hits := 0
	for _, id := range topK(retrieved, k) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := rel[id]; ok {
			hits++
		}
	}
	return hits
}

// PrecisionAtK is |top-k ∩ relevant| / k.
func PrecisionAtK(retrieved, relevant []int64, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	return float64(hitsAtK(retrieved, relevant, k)) / float64(k)
}

// RecallAtK is |top-k ∩ relevant| / |relevant|.
func RecallAtK(retrieved, relevant []int64, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	return float64(hitsAtK(retrieved, relevant, k)) / float64(len(idSet(relevant)))
}

// MRR is the reciprocal rank of the first relevant id over the whole list.
func MRR(retrieved, relevant []int64) float64 {
	rel := idSet(relevant)
	for i, id := range retrieved {
		if _, ok := rel[id]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecisionAtK averages the precision at each relevant position of the
// top k, normalized by min(|relevant|, k).
func AveragePrecisionAtK(retrieved, relevant []int64, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	rel := idSet(relevant)
	seen := make(map[int64]struct{})
	sum, hits := 0.0, 0
	for i, id := range topK(retrieved, k) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := rel[id]; ok {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(min(len(rel), k))
}

func dcg(gains []float64) float64 {
	total := 0.0
	for i, rel := range gains {
		total += (math.Pow(2, rel) - 1) / math.Log2(float64(i+2))
	}
	return total
}

// NDCGAtK uses binary gains 2^rel-1 with a log2 position discount. The ideal
// ordering is the retrieved relevance list sorted best first, so any top k
// made only of relevant ids scores 1.
func NDCGAtK(retrieved, relevant []int64, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	rel := idSet(relevant)
	top := topK(retrieved, k)
	gains := make([]float64, len(top))
	relevantCount := 0
	for i, id := range top {
		if _, ok := rel[id]; ok {
			gains[i] = 1
			relevantCount++
		}
	}
	ideal := make([]float64, len(top))
	for i := 0; i < relevantCount; i++ {
		ideal[i] = 1
	}
	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(gains) / idcg
}

// Clip bounds x to [lo, hi]. NaN clips to lo.
func Clip(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Cosine is the cosine similarity of two vectors, 0 when either is zero or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RougeScore is the LCS-based overlap of a hypothesis against a reference.
type RougeScore struct {
	Precision float64 // LCS / |hypothesis|
	Recall    float64 // LCS / |reference|
	F1        float64
}

// F returns the weighted F-measure; beta > 1 favours recall.
func (r RougeScore) F(beta float64) float64 {
	if r.Precision+r.Recall == 0 {
		return 0
	}
	b2 := beta * beta
	return (1 + b2) * r.Precision * r.Recall / (r.Recall + b2*r.Precision)
}

// RougeL scores hypothesis against reference over whitespace tokens.
// Precision and recall swap when the arguments swap.
func RougeL(reference, hypothesis string) RougeScore {
	ref := strings.Fields(reference)
	hyp := strings.Fields(hypothesis)
	if len(ref) == 0 || len(hyp) == 0 {
		return RougeScore{}
	}
	lcs := lcsLength(ref, hyp)
	score := RougeScore{
		Precision: float64(lcs) / float64(len(hyp)),
		Recall:    float64(lcs) / float64(len(ref)),
	}
	score.F1 = score.F(1)
	return score
}

func lcsLength(x, y []string) int {
	dp := make([]int, len(y)+1)
	for i := 1; i <= len(x); i++ {
		prev := 0
		for j := 1; j <= len(y); j++ {
			tmp := dp[j]
			if x[i-1] == y[j-1] {
				dp[j] = prev + 1
			} else if dp[j-1] > dp[j] {
				dp[j] = dp[j-1]
			}
			prev = tmp
		}
	}
	return dp[len(y)]
}

var spaces = regexp.MustCompile(`\s+`)

// autojunkMin is the length from which popular characters stop seeding
// matching blocks.
const autojunkMin = 200

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// FuzzyRatio is the Ratcliff/Obershelp similarity 2M/T of the normalized
// texts, where M counts characters in matching blocks. When b has 200 or more
// characters, characters making up more than 1% of it cannot seed a block,
// though they still extend one.
func FuzzyRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	x, y := []rune(normalize(a)), []rune(normalize(b))
	total := len(x) + len(y)
	if total == 0 {
		return 0
	}
	index := make(map[rune][]int)
	for j, r := range y {
		index[r] = append(index[r], j)
	}
	if len(y) >= autojunkMin {
		popular := len(y)/100 + 1
		for r, js := range index {
			if len(js) > popular {
				delete(index, r)
			}
		}
	}
	return 2 * float64(matchingChars(x, y, index, 0, len(x), 0, len(y))) / float64(total)
}

// matchingChars recursively finds the longest common block inside
// x[alo:ahi] and y[blo:bhi] and sums the matches on either side of it.
func matchingChars(x, y []rune, index map[rune][]int, alo, ahi, blo, bhi int) int {
	if alo >= ahi || blo >= bhi {
		return 0
	}
	besti, bestj, bestSize := alo, blo, 0
	lengths := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range index[x[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			n := lengths[j-1] + 1
			next[j] = n
			if n > bestSize {
				besti, bestj, bestSize = i-n+1, j-n+1, n
			}
		}
		lengths = next
	}
	for besti > alo && bestj > blo && x[besti-1] == y[bestj-1] {
		besti, bestj, bestSize = besti-1, bestj-1, bestSize+1
	}
	for besti+bestSize < ahi && bestj+bestSize < bhi && x[besti+bestSize] == y[bestj+bestSize] {
		bestSize++
	}
	if bestSize == 0 {
		return 0
	}
	return bestSize +
		matchingChars(x, y, index, alo, besti, blo, bestj) +
		matchingChars(x, y, index, besti+bestSize, ahi, bestj+bestSize, bhi)
}
