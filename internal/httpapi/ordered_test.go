package httpapi

import (
	"encoding/json"
	"testing"
)

func TestOrderedObjectPreservesDeclarationOrder(t *testing.T) {
	o := orderedObject{
		{Key: "zeta", Value: 1},
		{Key: "alpha", Value: 2},
		{Key: "mu", Value: 3},
	}

	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"zeta":1,"alpha":2,"mu":3}`
	if string(raw) != want {
		t.Errorf("got %s, want %s", raw, want)
	}

	var roundTrip map[string]int
	if err := json.Unmarshal(raw, &roundTrip); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if roundTrip["alpha"] != 2 || roundTrip["zeta"] != 1 || roundTrip["mu"] != 3 {
		t.Errorf("unexpected round-tripped values: %v", roundTrip)
	}
}

func TestOrderedObjectEmpty(t *testing.T) {
	var o orderedObject
	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("got %s, want {}", raw)
	}
}
