package workflow

// resolveInputs walks the edges targeting nodeID and materializes its input
// set. Image fan-in preserves edge-creation order; sources whose output has
// not been produced yet are skipped rather than treated as errors. For the
// text handle the most recently connected edge wins, and an empty source
// value resolves to nil text.
func resolveInputs(s *GraphStore, nodeID string) ResolvedInputs {
	var in ResolvedInputs
	var textEdge *Edge

	for _, e := range s.incoming(nodeID) {
		switch e.TargetHandle {
		case HandleImage:
			src, err := s.Node(e.Source)
			if err != nil {
				continue
			}
			if img, produces := src.Data.OutputImage(); produces && img != "" {
				in.Images = append(in.Images, img)
			}
		case HandleText:
			if textEdge == nil || e.Seq > textEdge.Seq {
				textEdge = e
			}
		}
	}

	if textEdge != nil {
		if src, err := s.Node(textEdge.Source); err == nil {
			if text, produces := src.Data.OutputText(); produces && text != "" {
				in.Text = &text
			}
		}
	}
	return in
}
