package types

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Item is one inventory entry
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Inventory is an ordered name to quantity mapping. Names are unique under
// case folding.
type Inventory []Item

// Fold returns the case-folded form of s used for all name matching
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// ContainsFold reports whether s contains substr under case folding
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}

func (inv Inventory) index(name string) int {
	key := Fold(name)
	for i, item := range inv {
		if Fold(item.Name) == key {
			return i
		}
	}
	return -1
}

// Has reports whether an entry named name exists
func (inv Inventory) Has(name string) bool {
	return inv.index(name) >= 0
}

// Quantity returns how many of name are held
func (inv Inventory) Quantity(name string) int {
	if i := inv.index(name); i >= 0 {
		return inv[i].Quantity
	}
	return 0
}

// Names returns entry names in order
func (inv Inventory) Names() []string {
	names := make([]string, 0, len(inv))
	for _, item := range inv {
		names = append(names, item.Name)
	}
	return names
}

// Grant adds qty of name, stacking onto an existing entry
func (inv *Inventory) Grant(name string, qty int) {
	name = strings.TrimSpace(name)
	if name == "" || qty <= 0 {
		return
	}
	if i := inv.index(name); i >= 0 {
		(*inv)[i].Quantity += qty
		return
	}
	*inv = append(*inv, Item{Name: name, Quantity: qty})
}

// AddUnique appends name with quantity 1 unless it is already held
func (inv *Inventory) AddUnique(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || inv.Has(name) {
		return false
	}
	*inv = append(*inv, Item{Name: name, Quantity: 1})
	return true
}

// RemoveMatching takes one unit from the first entry whose name contains
// fragment under case folding. Narrator-authored names rarely match the stored
// name verbatim, so the match is deliberately loose and first-wins.
func (inv *Inventory) RemoveMatching(fragment string) (string, bool) {
	key := Fold(fragment)
	if key == "" {
		return "", false
	}
	for i, item := range *inv {
		if strings.Contains(Fold(item.Name), key) {
			inv.take(i)
			return item.Name, true
		}
	}
	return "", false
}

// Drop removes the whole entry named name
func (inv *Inventory) Drop(name string) bool {
	i := inv.index(name)
	if i < 0 {
		return false
	}
	*inv = append((*inv)[:i], (*inv)[i+1:]...)
	return true
}

func (inv *Inventory) take(i int) {
	(*inv)[i].Quantity--
	if (*inv)[i].Quantity <= 0 {
		*inv = append((*inv)[:i], (*inv)[i+1:]...)
	}
}

// Clone returns an independent copy
func (inv Inventory) Clone() Inventory {
	if inv == nil {
		return nil
	}
	return append(Inventory(nil), inv...)
}

// String renders the inventory for prompts, e.g. "Clothes x1, Rope x2"
func (inv Inventory) String() string {
	if len(inv) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(inv))
	for _, item := range inv {
		parts = append(parts, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
	}
	return strings.Join(parts, ", ")
}
