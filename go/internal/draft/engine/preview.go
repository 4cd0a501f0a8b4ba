package engine

// SetPreview records team's intended next champion. The value is not
// validated here; it is checked when it is consumed as an action.
func SetPreview(s DraftState, team Team, championID string) DraftState {
	next := s.Clone()
	next.Previews[team] = championID
	return next
}

// ResolveTurn applies action and discards the acting team's preview, which is
// consumed as soon as that team's turn resolves.
func ResolveTurn(s DraftState, action Action) (DraftState, error) {
	next, err := ApplyAction(s, action)
	if err != nil {
		return s, err
	}
	delete(next.Previews, action.Team)
	return next, nil
}

// PreviewFor returns team's non-blank preview as a selection.
func PreviewFor(s DraftState, team Team) (Selection, bool) {
	sel := Picked(s.Previews[team])
	if sel.IsSkipped() {
		return Skipped(), false
	}
	return sel, true
}
