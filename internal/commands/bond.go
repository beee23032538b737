package commands

import (
	"fmt"
	"sort"

	"github.com/tracklab/gatelink/internal/bond"
)

// BondList prints every bonded gate identifier.
func BondList() error {
	store, err := bond.OpenDefault()
	if err != nil {
		return fmt.Errorf("bond store: %w", err)
	}

	ids, err := store.LoadIdentifiers()
	if err != nil {
		return fmt.Errorf("failed to load bonds: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No bonded gates")
		return nil
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		fmt.Println(id)
	}
	return nil
}

// BondRemove forgets a bonded gate.
func BondRemove(id string) error {
	store, err := bond.OpenDefault()
	if err != nil {
		return fmt.Errorf("bond store: %w", err)
	}

	ids, err := store.LoadIdentifiers()
	if err != nil {
		return fmt.Errorf("failed to load bonds: %w", err)
	}
	if _, ok := ids[id]; !ok {
		return fmt.Errorf("%s is not bonded", id)
	}
	delete(ids, id)
	if err := store.SaveIdentifiers(ids); err != nil {
		return fmt.Errorf("failed to save bonds: %w", err)
	}
	fmt.Printf("Removed bond for %s\n", id)
	return nil
}
