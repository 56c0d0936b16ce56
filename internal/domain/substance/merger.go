package substance

// Merge returns ai followed by every db detection whose case-folded name is
// absent from ai. AI entries are copied unchanged; db entries only add
// coverage and never overwrite.
func Merge(db, ai []Detection) []Detection {
	out := make([]Detection, 0, len(ai)+len(db))
	out = append(out, ai...)

	present := make(map[string]struct{}, len(ai)+len(db))
	for _, d := range ai {
		present[d.Key()] = struct{}{}
	}
	for _, d := range db {
		k := d.Key()
		if _, ok := present[k]; ok {
			continue
		}
		present[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

// MergeDetections merges allergens and PFAS independently. Other concerns
// have no database counterpart and come from ai unchanged.
func MergeDetections(db, ai Detections) Detections {
	others := ai.OtherConcerns
	if others == nil {
		others = []Detection{}
	}
	return Detections{
		Allergens:     Merge(db.Allergens, ai.Allergens),
		PFAS:          Merge(db.PFAS, ai.PFAS),
		OtherConcerns: others,
	}
}
