package molecule

import "strings"

// Element describes the handful of periodic-table facts the fragmenter needs.
type Element struct {
	Number   int
	Symbol   string
	Valences []int
	Organic  bool
}

var elements = []Element{
	{1, "H", []int{1}, false},
	{3, "Li", nil, false},
	{5, "B", []int{3}, true},
	{6, "C", []int{4}, true},
	{7, "N", []int{3, 5}, true},
	{8, "O", []int{2}, true},
	{9, "F", []int{1}, true},
	{11, "Na", nil, false},
	{12, "Mg", nil, false},
	{13, "Al", nil, false},
	{14, "Si", []int{4}, false},
	{15, "P", []int{3, 5}, true},
	{16, "S", []int{2, 4, 6}, true},
	{17, "Cl", []int{1}, true},
	{19, "K", nil, false},
	{20, "Ca", nil, false},
	{26, "Fe", nil, false},
	{29, "Cu", nil, false},
	{30, "Zn", nil, false},
	{33, "As", []int{3, 5}, false},
	{34, "Se", []int{2, 4, 6}, false},
	{35, "Br", []int{1}, true},
	{53, "I", []int{1}, true},
}

var (
	bySymbol = map[string]*Element{}
	byNumber = map[int]*Element{}
)

func init() {
	for i := range elements {
		e := &elements[i]
		bySymbol[e.Symbol] = e
		byNumber[e.Number] = e
	}
}

// LookupElement resolves a symbol such as "Cl" or an aromatic spelling such as
// "c" or "se".
func LookupElement(symbol string) (*Element, bool) {
	if symbol == "" {
		return nil, false
	}
	if e, ok := bySymbol[symbol]; ok {
		return e, true
	}
	canon := strings.ToUpper(symbol[:1]) + symbol[1:]
	e, ok := bySymbol[canon]
	return e, ok
}

// ElementByNumber resolves an atomic number.
func ElementByNumber(n int) (*Element, bool) {
	e, ok := byNumber[n]
	return e, ok
}

// targetValence is the lowest default valence able to hold bondSum, shifted by
// the formal charge the way the usual SMILES valence model does it.
func (e *Element) targetValence(bondSum, charge int) (int, bool) {
	if len(e.Valences) == 0 {
		return 0, false
	}
	shift := 0
	switch e.Number {
	case 6, 14:
		if charge != 0 {
			shift = -absInt(charge)
		}
	case 5:
		shift = -charge
	case 7, 8, 15, 16, 33, 34:
		shift = charge
	default:
		shift = -absInt(charge)
	}
	for _, v := range e.Valences {
		if v+shift >= bondSum {
			return v + shift, true
		}
	}
	return e.Valences[len(e.Valences)-1] + shift, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// DefaultHydrogens is the implicit hydrogen count the default-valence model
// assigns to an atom of this element with the given bond-order sum (aromatic
// bonds counted as 1).  Elements without a default valence get none.
func (e *Element) DefaultHydrogens(bondSum, charge int, aromatic bool) int {
	if aromatic {
		bondSum++
	}
	target, ok := e.targetValence(bondSum, charge)
	if !ok || target <= bondSum {
		return 0
	}
	return target - bondSum
}
