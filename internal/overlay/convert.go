package overlay

// ToDrawing maps an overlay to its persistence form. The symbol key is
// carried as-is; callers that persist must make sure it is set.
func ToDrawing(o DataSpaceOverlay) Drawing {
	points := make([]DrawingPoint, len(o.Points))
	for i, p := range o.Points {
		points[i] = DrawingPoint{ID: p.ID, Time: p.T, Price: p.P}
	}
	visible := o.Visible
	return Drawing{
		ID:        o.ID,
		SymbolKey: o.SymbolKey,
		Type:      o.Type,
		Points:    points,
		Style:     o.Style.Clone(),
		GroupID:   o.GroupID,
		Visible:   &visible,
		Lock:      o.Lock,
		CreatedAt: o.CreatedAt,
		Version:   o.Version,
		Extend:    cloneExtend(o.Extend),
	}
}

// FromDrawing maps a stored drawing back to data space. Point ids that were
// not persisted are regenerated; everything else round-trips unchanged.
func FromDrawing(d Drawing) DataSpaceOverlay {
	points := make([]OverlayPoint, len(d.Points))
	for i, p := range d.Points {
		id := p.ID
		if id == "" {
			id = NewID()
		}
		points[i] = OverlayPoint{ID: id, T: p.Time, P: p.Price}
	}
	version := d.Version
	if version == 0 {
		version = Version
	}
	return DataSpaceOverlay{
		ID:        d.ID,
		SymbolKey: d.SymbolKey,
		Type:      d.Type,
		Points:    points,
		Style:     d.Style.Clone(),
		GroupID:   d.GroupID,
		Visible:   d.IsVisible(),
		Lock:      d.Lock,
		CreatedAt: d.CreatedAt,
		Version:   version,
		Extend:    cloneExtend(d.Extend),
	}
}
