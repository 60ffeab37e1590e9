package grant

import (
	"testing"
)

func TestDecodeConstraints(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []ConstraintMap
	}{
		{"sql null", nil, nil},
		{"empty string", "", nil},
		{"json null", "null", nil},
		{
			"single object",
			`{"name__icontains": "test"}`,
			[]ConstraintMap{{"name__icontains": "test"}},
		},
		{
			"array",
			`[{"name": "A"}, {"name": "B"}]`,
			[]ConstraintMap{{"name": "A"}, {"name": "B"}},
		},
		{
			"array with nulls keeps them as nil maps",
			`[{"name": "A"}, null]`,
			[]ConstraintMap{{"name": "A"}, nil},
		},
		{"bytes column", []byte(`{"id": 3}`), []ConstraintMap{{"id": float64(3)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConstraints(tt.raw)
			if err != nil {
				t.Fatalf("DecodeConstraints: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if (got[i] == nil) != (tt.want[i] == nil) {
					t.Fatalf("entry %d nil-ness mismatch: got %v, want %v", i, got[i], tt.want[i])
				}
				for k, v := range tt.want[i] {
					if got[i][k] != v {
						t.Errorf("entry %d key %q = %v, want %v", i, k, got[i][k], v)
					}
				}
			}
		})
	}

	if _, err := DecodeConstraints("{not json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeActions(t *testing.T) {
	actions, err := DecodeActions(`["view", "change"]`)
	if err != nil {
		t.Fatalf("DecodeActions: %v", err)
	}
	if len(actions) != 2 || actions[0] != "view" || actions[1] != "change" {
		t.Errorf("got %v, want [view change]", actions)
	}

	actions, err = DecodeActions(nil)
	if err != nil || actions != nil {
		t.Errorf("SQL NULL should decode to nil, got %v, %v", actions, err)
	}
}

func TestConstraintList(t *testing.T) {
	g := &Grant{}
	list := g.ConstraintList()
	if len(list) != 1 || list[0] != nil {
		t.Errorf("empty constraints should yield a single nil map, got %v", list)
	}

	g.Constraints = []ConstraintMap{{"name": "A"}}
	list = g.ConstraintList()
	if len(list) != 1 || list[0]["name"] != "A" {
		t.Errorf("got %v", list)
	}
}
