package monitor

import (
	"encoding/json"
	"testing"
)

func TestStatsMarshalsExpectedFields(t *testing.T) {
	s := Stats{CacheLive: 3, CacheRetired: 1, CacheRestored: 2, Cycle: 42}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["cache_live"].(float64) != 3 {
		t.Fatalf("cache_live = %v, want 3", got["cache_live"])
	}
	if _, present := got["last_invalidate"]; present {
		t.Fatalf("last_invalidate should be omitted when empty, got %v", got["last_invalidate"])
	}
}

func TestNewHubStartsWithNoClients(t *testing.T) {
	h := NewHub(func() Stats { return Stats{} }, 0)
	if len(h.clients) != 0 {
		t.Fatalf("new hub should start with no registered clients")
	}
}
