package validation

import "fmt"

// Entity is a batter whose season coverage is checked end to end
type Entity struct {
	ID   int64
	Name string
}

// KnownEntities names the default key batters
var KnownEntities = map[int64]string{
	592450: "Aaron Judge",
	545361: "Mike Trout",
	666176: "Ronald Acuña Jr.",
	592518: "Mookie Betts",
	608369: "Vladimir Guerrero Jr.",
}

// DefaultEntityIDs lists KnownEntities in their canonical order
var DefaultEntityIDs = []int64{592450, 545361, 666176, 592518, 608369}

// Entities resolves ids to entities, naming unknown ids by number
func Entities(ids []int64) []Entity {
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		name, ok := KnownEntities[id]
		if !ok {
			name = fmt.Sprintf("batter %d", id)
		}
		out = append(out, Entity{ID: id, Name: name})
	}
	return out
}
