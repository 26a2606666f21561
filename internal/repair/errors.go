package repair

// InvariantError reports a violated repair-state invariant, such as two
// overlapping ranges in one VnodeStates. It signals a bug and is raised with
// panic rather than returned.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "repair state invariant violated: " + e.Msg
}
