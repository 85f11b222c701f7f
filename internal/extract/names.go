package extract

import (
	"ppbverify/lib/textutil"

	"github.com/antzucaro/matchr"
)

// NameAgreementThreshold is the similarity below which the search row name
// and the details page name are considered to disagree.
const NameAgreementThreshold = 0.85

// NameAgreement compares two renderings of a person's name. The portal lists
// the search row as "SURNAME GIVEN" and the details page as "Given Surname",
// so words are compared order-independently.
func NameAgreement(a, b string) float64 {
	left := textutil.SortedTokens(a)
	right := textutil.SortedTokens(b)
	if left == "" || right == "" {
		return 0
	}
	return matchr.JaroWinkler(left, right, false)
}
