// Package retrieval contains concrete RetrievalService implementations and
// the shared ranking rule. The service interface and result type reside in
// the core package; select an implementation at wiring time.
package retrieval

import (
	"sort"

	"github.com/hupe1980/convomesh/core"
)

// DefaultTopK is the candidate count requested when a query leaves TopK
// unset.
const DefaultTopK = 5

// Rank orders candidates by descending similarity score; ties are broken by
// the most recent (lexicographically greatest) document identifier. The
// ordering is total, so re-ranking an identical candidate set is
// deterministic.
func Rank(results []core.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].DocID > results[j].DocID
	})
}
