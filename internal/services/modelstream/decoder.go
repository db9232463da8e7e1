package modelstream

// Decoded is what the chat pipeline needs from one event.
type Decoded struct {
	Text     string
	Terminal bool
}

// Decode maps an event to its visible effect. It is pure: only text deltas
// yield text, and only completion or failure is terminal.
func Decode(ev Event) Decoded {
	switch e := ev.(type) {
	case OutputTextDelta:
		return Decoded{Text: e.Delta}
	case Completed, Failed:
		return Decoded{Terminal: true}
	default:
		return Decoded{}
	}
}
