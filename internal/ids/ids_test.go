package ids

import "testing"

func TestUUIDProviderIssuesOrderedIdentifiers(t *testing.T) {
	provider := NewUUIDProvider()
	previous := ""
	for index := 0; index < 64; index++ {
		id, err := provider.NewID()
		if err != nil {
			t.Fatalf("unexpected id error: %v", err)
		}
		if id <= previous {
			t.Fatalf("expected increasing identifiers, got %s after %s", id, previous)
		}
		previous = id
	}
}
