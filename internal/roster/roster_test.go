package roster

import (
	"errors"
	"math/rand"
	"testing"

	"reverseturing/internal/config"
)

func TestSetupAssignsExactlyOneHuman(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		r, err := Setup(5, config.DefaultNamePool, true, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("seed %d: unexpected error %v", seed, err)
		}
		humans := 0
		for i, p := range r.All() {
			if p.ID != i+1 {
				t.Fatalf("expected contiguous ids, got %d at position %d", p.ID, i)
			}
			if p.IsHuman() {
				humans++
			}
		}
		if humans != 1 {
			t.Fatalf("seed %d: expected exactly one human, got %d", seed, humans)
		}
		if r.Human().ID != r.HumanID() {
			t.Fatalf("human accessor disagrees with human id")
		}
		if len(r.Generated()) != 4 {
			t.Fatalf("expected 4 generated participants, got %d", len(r.Generated()))
		}
	}
}

func TestSetupRandomNamesAreUniqueAndFromPool(t *testing.T) {
	pool := []string{"Ann", "Bo", "Cy", "Di"}
	r, err := Setup(4, pool, true, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	seen := map[string]bool{}
	for _, p := range r.All() {
		if seen[p.Name] {
			t.Fatalf("duplicate name %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, name := range pool {
		if !seen[name] {
			t.Fatalf("expected every pool name to be used when pool == total, missing %q", name)
		}
	}
}

func TestSetupPositionalNames(t *testing.T) {
	r, err := Setup(3, nil, false, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got := r.All()[1].Name; got != "Participant 2" {
		t.Fatalf("expected positional name, got %q", got)
	}
}

func TestSetupRejectsSmallPool(t *testing.T) {
	_, err := Setup(5, []string{"Ann", "Bo"}, true, rand.New(rand.NewSource(1)))
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestSetupRejectsDuplicatePoolNames(t *testing.T) {
	_, err := Setup(2, []string{"Ann", "Ann"}, true, rand.New(rand.NewSource(1)))
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for duplicate names, got %v", err)
	}
}

func TestSetupRejectsTooFewParticipants(t *testing.T) {
	_, err := Setup(1, config.DefaultNamePool, true, rand.New(rand.NewSource(1)))
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestSeedIsStablePerParticipant(t *testing.T) {
	if SeedFor(3) != SeedFor(3) {
		t.Fatalf("expected stable seed")
	}
	if SeedFor(3) == SeedFor(4) {
		t.Fatalf("expected distinct seeds for distinct ids")
	}
	a, _ := Setup(5, config.DefaultNamePool, true, rand.New(rand.NewSource(7)))
	b, _ := Setup(5, config.DefaultNamePool, true, rand.New(rand.NewSource(8)))
	for id := 1; id <= 5; id++ {
		pa, _ := a.Get(id)
		pb, _ := b.Get(id)
		if !pa.IsHuman() && !pb.IsHuman() && pa.Personality != pb.Personality {
			t.Fatalf("expected personality to depend only on id %d", id)
		}
	}
}

func TestOthersExcludesSelf(t *testing.T) {
	r, _ := Setup(4, config.DefaultNamePool, true, rand.New(rand.NewSource(2)))
	for _, p := range r.Others(2) {
		if p.ID == 2 {
			t.Fatalf("expected Others to exclude the given id")
		}
	}
	if len(r.Others(2)) != 3 {
		t.Fatalf("expected 3 others, got %d", len(r.Others(2)))
	}
	if _, ok := r.Get(0); ok {
		t.Fatalf("expected id 0 to be absent")
	}
	if _, ok := r.Get(5); ok {
		t.Fatalf("expected id 5 to be absent")
	}
}
