package control

// Walk visits n and then its descendants in insertion order, depth first.
func Walk(n ControlNode, fn func(n ControlNode, depth int)) {
	walk(n, 0, fn)
}

func walk(n ControlNode, depth int, fn func(ControlNode, int)) {
	if n == nil {
		return
	}
	fn(n, depth)
	if s, ok := n.(*Supervisor); ok {
		for _, c := range s.Children() {
			walk(c, depth+1, fn)
		}
	}
}
