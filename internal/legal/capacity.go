package legal

import "strings"

// Capacity is the principal role a contact plays in a case.
type Capacity string

const (
	Actor     Capacity = "Actor"
	Demandado Capacity = "Demandado"
	Tercero   Capacity = "Tercero"
	Abogado   Capacity = "Abogado"
	Apoderado Capacity = "Apoderado"
	Perito    Capacity = "Perito"
	Testigo   Capacity = "Testigo"
	Mediador  Capacity = "Mediador"
	Otro      Capacity = "Otro"
)

// KnownCapacities lists the recognized capacities in listing order.
var KnownCapacities = []Capacity{Actor, Demandado, Tercero, Abogado, Apoderado, Perito, Testigo, Mediador, Otro}

var capacityRank = map[Capacity]int{
	Actor:     1,
	Demandado: 2,
	Tercero:   3,
	Abogado:   4,
	Apoderado: 5,
	Perito:    6,
}

// OtherRank is the listing rank shared by every capacity without its own slot.
const OtherRank = 7

// ParseCapacity matches a capacity case-insensitively. Unknown values are
// returned trimmed but otherwise untouched.
func ParseCapacity(s string) Capacity {
	s = strings.TrimSpace(s)
	for _, c := range KnownCapacities {
		if strings.EqualFold(string(c), s) {
			return c
		}
	}
	return Capacity(s)
}

// Known reports whether c is a recognized capacity.
func (c Capacity) Known() bool {
	for _, k := range KnownCapacities {
		if k == c {
			return true
		}
	}
	return false
}

// IsAttorney reports whether c may appear more than once per contact and case.
func (c Capacity) IsAttorney() bool {
	return c == Abogado || c == Apoderado
}

// IsParty reports whether c is a case party that can be represented in a group.
func (c Capacity) IsParty() bool {
	return c == Actor || c == Demandado || c == Tercero
}

// Rank orders capacities for case listings.
func (c Capacity) Rank() int {
	if r, ok := capacityRank[c]; ok {
		return r
	}
	return OtherRank
}
