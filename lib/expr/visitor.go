package expr

// Visitor is implemented by algorithms that walk the tree.
type Visitor interface {
	Visit(Node) Visitor
}

func (n *Constant) Accept(v Visitor)     { Walk(v, n) }
func (n *Parameter) Accept(v Visitor)    { Walk(v, n) }
func (n *MemberAccess) Accept(v Visitor) { Walk(v, n) }
func (n *Call) Accept(v Visitor)         { Walk(v, n) }
func (n *Binary) Accept(v Visitor)       { Walk(v, n) }
func (n *Unary) Accept(v Visitor)        { Walk(v, n) }
func (n *Convert) Accept(v Visitor)      { Walk(v, n) }
func (n *Lambda) Accept(v Visitor)       { Walk(v, n) }
func (n *New) Accept(v Visitor)          { Walk(v, n) }
func (n *Conditional) Accept(v Visitor)  { Walk(v, n) }
func (n *ArrayLiteral) Accept(v Visitor) { Walk(v, n) }

// Walk traverses the tree rooted at node using the provided visitor.
func Walk(v Visitor, node Node) {
	if node == nil || v == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}

	switch n := node.(type) {
	case *Constant, *Parameter:
		// leaves
	case *MemberAccess:
		Walk(v, n.Target)
	case *Call:
		Walk(v, n.Receiver)
		for _, arg := range n.Args {
			Walk(v, arg)
		}
	case *Binary:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *Unary:
		Walk(v, n.Operand)
	case *Convert:
		Walk(v, n.Operand)
	case *Lambda:
		for _, p := range n.Params {
			Walk(v, p)
		}
		Walk(v, n.Body)
	case *New:
		for _, arg := range n.Args {
			Walk(v, arg)
		}
	case *Conditional:
		Walk(v, n.Test)
		Walk(v, n.IfTrue)
		Walk(v, n.IfFalse)
	case *ArrayLiteral:
		for _, e := range n.Elements {
			Walk(v, e)
		}
	}

	v.Visit(nil)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if node == nil {
		return nil
	}
	if f(node) {
		return f
	}
	return nil
}

// Inspect calls fn for every node in depth-first order until fn returns false
// for a subtree.
func Inspect(node Node, fn func(Node) bool) {
	Walk(inspector(fn), node)
}

// Replace returns a copy of node with every occurrence of from swapped for to.
// Subtrees that do not contain from are shared, not copied.
func Replace(node, from, to Node) Node {
	if node == nil {
		return nil
	}
	if node == from {
		return to
	}
	switch n := node.(type) {
	case *MemberAccess:
		target := Replace(n.Target, from, to)
		if target == n.Target {
			return n
		}
		return &MemberAccess{Target: target, Member: n.Member, Type: n.Type}
	case *Call:
		recv := Replace(n.Receiver, from, to)
		args, changed := replaceAll(n.Args, from, to)
		if recv == n.Receiver && !changed {
			return n
		}
		return &Call{Declaring: n.Declaring, Method: n.Method, Receiver: recv, Args: args}
	case *Binary:
		l, r := Replace(n.Left, from, to), Replace(n.Right, from, to)
		if l == n.Left && r == n.Right {
			return n
		}
		return &Binary{Op: n.Op, Left: l, Right: r}
	case *Unary:
		operand := Replace(n.Operand, from, to)
		if operand == n.Operand {
			return n
		}
		return &Unary{Op: n.Op, Operand: operand}
	case *Convert:
		operand := Replace(n.Operand, from, to)
		if operand == n.Operand {
			return n
		}
		return &Convert{Target: n.Target, Operand: operand}
	case *Lambda:
		body := Replace(n.Body, from, to)
		if body == n.Body {
			return n
		}
		return &Lambda{Params: n.Params, Body: body}
	case *New:
		args, changed := replaceAll(n.Args, from, to)
		if !changed {
			return n
		}
		return &New{Type: n.Type, Members: n.Members, Args: args}
	case *Conditional:
		t, a, b := Replace(n.Test, from, to), Replace(n.IfTrue, from, to), Replace(n.IfFalse, from, to)
		if t == n.Test && a == n.IfTrue && b == n.IfFalse {
			return n
		}
		return &Conditional{Test: t, IfTrue: a, IfFalse: b}
	case *ArrayLiteral:
		elems, changed := replaceAll(n.Elements, from, to)
		if !changed {
			return n
		}
		return &ArrayLiteral{Elements: elems}
	default:
		return node
	}
}

func replaceAll(nodes []Node, from, to Node) ([]Node, bool) {
	changed := false
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Replace(n, from, to)
		if out[i] != n {
			changed = true
		}
	}
	return out, changed
}

// References reports whether p occurs anywhere under node.
func References(node Node, p *Parameter) bool {
	found := false
	Inspect(node, func(n Node) bool {
		if n == Node(p) {
			found = true
		}
		return !found
	})
	return found
}
