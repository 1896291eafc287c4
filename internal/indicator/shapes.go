package indicator

import "cryptoengine/internal/model"

// DedupShapes filters shapes to one per dedup key, keeping the first
// occurrence of each key. Per §4.5: a box is unique by (time1,price1,
// price2), a line by (time1,time2,price1,price2), a marker by (time,price,
// shape,text), an arrow by (time,direction,text), a fill unique per
// instance — all implemented by model.Shape.DedupKey(), which this function
// just applies across a slice. New shape kinds are supported by adding a
// case to DedupKey, not by touching this function.
func DedupShapes(shapes []model.Shape) []model.Shape {
	seen := make(map[string]struct{}, len(shapes))
	out := make([]model.Shape, 0, len(shapes))
	for _, s := range shapes {
		key := s.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
