package graph

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mapView map[string][]string

func (m mapView) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m mapView) Deps(id string) []string { return m[id] }

func TestFindCycles(t *testing.T) {
	tests := []struct {
		name string
		view mapView
		seed string
		want []Cycle
	}{
		{
			name: "acyclic",
			view: mapView{"a": {"b", "c"}, "b": {"c"}, "c": nil},
		},
		{
			name: "two node cycle",
			view: mapView{"a": {"b"}, "b": {"a"}},
			want: []Cycle{{"a", "b"}},
		},
		{
			name: "every simple cycle",
			view: mapView{"a": {"b"}, "b": {"a", "c"}, "c": {"a"}},
			want: []Cycle{{"a", "b"}, {"a", "b", "c"}},
		},
		{
			name: "self import",
			view: mapView{"a": {"a", "b"}, "b": nil},
			want: []Cycle{{"a"}},
		},
		{
			name: "disjoint components",
			view: mapView{"a": {"b"}, "b": {"a"}, "c": {"d"}, "d": {"c"}, "e": {"a"}},
			want: []Cycle{{"a", "b"}, {"c", "d"}},
		},
		{
			name: "seeded",
			view: mapView{"a": {"b"}, "b": {"a", "c"}, "c": {"a"}, "x": {"y"}, "y": {"x"}},
			seed: "c",
			want: []Cycle{{"c", "a", "b"}},
		},
		{
			name: "seed outside any cycle",
			view: mapView{"a": {"b"}, "b": {"a"}, "c": {"a"}},
			seed: "c",
		},
		{
			name: "unknown seed",
			view: mapView{"a": {"b"}, "b": {"a"}},
			seed: "zzz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindCycles(tt.view, tt.seed))
		})
	}
}
