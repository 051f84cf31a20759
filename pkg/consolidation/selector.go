package consolidation

import (
	"slices"

	"github.com/chris/invoice-settlement/pkg/models"
)

// DefaultMaxSearchUnits bounds the subset-sum table to this many cells.
const DefaultMaxSearchUnits = 200000

// Evaluation is the selector's verdict on an accumulated invoice list.
// All subsets are given as indices into that list, in list order.
type Evaluation struct {
	// Single is the first invoice whose balance alone covers the cash amount, or -1.
	Single int
	// Exact is a subset whose balances sum to exactly the cash amount, nil if none was found.
	Exact []int
	// Best is the affordable subset that leaves the least cash unapplied. When no subset is
	// affordable it holds the single lowest-balance invoice and Affordable is false.
	Best       []int
	Affordable bool
}

// Evaluate runs the subset search over invoices for the given cash amount.
func Evaluate(invoices []models.Invoice, cash int64) Evaluation {
	return EvaluateBounded(invoices, cash, DefaultMaxSearchUnits)
}

// EvaluateBounded is Evaluate with an explicit cap on the search table size.
func EvaluateBounded(invoices []models.Invoice, cash int64, maxUnits int) Evaluation {
	search := newSubsetSearch(cash, maxUnits)
	for _, inv := range invoices {
		search.add(inv.Balance)
	}
	return search.evaluate()
}

// subsetSearch is an incremental 0/1 subset-sum reachability table over the cash amount.
// Cell c holds the index of the first invoice that made sum c reachable, so walking the
// pointers back from any cell yields the subset reached first in fetch order.
//
// Cash amounts above the cell cap are searched in quanta: the cash is rounded down and
// balances are rounded up, so every subset the table reports is affordable in real units.
// Rounding can hide exact and closer matches, so quantized searches also track the real
// sums reached, up to the same cap, in sums.
type subsetSearch struct {
	cash     int64
	quantum  int64
	capacity int
	from     []int32

	// sums maps a real affordable sum to the first invoice that reached it.
	// It is nil when the table is exact, and stops growing once it holds maxSums entries.
	sums     map[int64]int32
	maxSums  int
	realBest int64

	balances []int64
	units    []int
	single   int
	cheapest int
	best     int
}

func newSubsetSearch(cash int64, maxUnits int) *subsetSearch {
	if maxUnits <= 0 {
		maxUnits = DefaultMaxSearchUnits
	}
	s := &subsetSearch{cash: cash, quantum: 1, single: -1, cheapest: -1}
	if cash <= 0 {
		return s
	}
	if cash > int64(maxUnits) {
		s.quantum = (cash + int64(maxUnits) - 1) / int64(maxUnits)
		s.sums = map[int64]int32{0: -1}
		s.maxSums = maxUnits
	}
	s.capacity = int(cash / s.quantum)
	s.from = make([]int32, s.capacity+1)
	for c := 1; c <= s.capacity; c++ {
		s.from[c] = -1
	}
	return s
}

func (s *subsetSearch) add(balance int64) {
	i := len(s.balances)
	s.balances = append(s.balances, balance)

	if s.single < 0 && balance >= s.cash {
		s.single = i
	}
	if s.cheapest < 0 || balance < s.balances[s.cheapest] {
		s.cheapest = i
	}

	s.addSum(i, balance)

	u := 0
	if balance > 0 {
		u = int((balance + s.quantum - 1) / s.quantum)
	}
	s.units = append(s.units, u)
	if u == 0 || u > s.capacity {
		return
	}

	// Walk downwards so cell c-u still reflects only earlier invoices.
	for c := s.capacity; c >= u; c-- {
		if s.from[c] < 0 && s.from[c-u] >= 0 {
			s.from[c] = int32(i)
			if c > s.best {
				s.best = c
			}
		}
	}
}

// addSum extends the real reachable sums with invoice i. Sums are taken from a snapshot so
// that each invoice is used at most once, smallest first so a full map stays deterministic.
func (s *subsetSearch) addSum(i int, balance int64) {
	if s.sums == nil || balance <= 0 || balance > s.cash {
		return
	}
	reached := make([]int64, 0, len(s.sums))
	for sum := range s.sums {
		if sum+balance <= s.cash {
			reached = append(reached, sum)
		}
	}
	slices.Sort(reached)
	for _, sum := range reached {
		if len(s.sums) >= s.maxSums {
			return
		}
		next := sum + balance
		if _, ok := s.sums[next]; ok {
			continue
		}
		s.sums[next] = int32(i)
		if next > s.realBest {
			s.realBest = next
		}
	}
}

// realSubset reconstructs the invoices that first reached the real sum.
func (s *subsetSearch) realSubset(sum int64) []int {
	var idx []int
	for sum > 0 {
		i := int(s.sums[sum])
		idx = append(idx, i)
		sum -= s.balances[i]
	}
	for l, r := 0, len(idx)-1; l < r; l, r = l+1, r-1 {
		idx[l], idx[r] = idx[r], idx[l]
	}
	return idx
}

// subset reconstructs the invoices that first reached cell c.
func (s *subsetSearch) subset(c int) []int {
	var idx []int
	for c > 0 {
		i := int(s.from[c])
		idx = append(idx, i)
		c -= s.units[i]
	}
	for l, r := 0, len(idx)-1; l < r; l, r = l+1, r-1 {
		idx[l], idx[r] = idx[r], idx[l]
	}
	return idx
}

func (s *subsetSearch) sum(idx []int) int64 {
	var total int64
	for _, i := range idx {
		total += s.balances[i]
	}
	return total
}

func (s *subsetSearch) exact() []int {
	if _, ok := s.sums[s.cash]; ok && s.cash > 0 {
		return s.realSubset(s.cash)
	}
	if s.capacity == 0 || s.from[s.capacity] < 0 {
		return nil
	}
	idx := s.subset(s.capacity)
	if s.sum(idx) != s.cash {
		return nil
	}
	return idx
}

func (s *subsetSearch) evaluate() Evaluation {
	ev := Evaluation{Single: s.single, Exact: s.exact()}
	switch {
	case s.best > 0 || s.realBest > 0:
		if s.best > 0 {
			ev.Best = s.subset(s.best)
		}
		if s.realBest > s.sum(ev.Best) {
			ev.Best = s.realSubset(s.realBest)
		}
		ev.Affordable = true
	case s.cheapest >= 0:
		ev.Best = []int{s.cheapest}
		ev.Affordable = s.balances[s.cheapest] <= s.cash
	}
	return ev
}
