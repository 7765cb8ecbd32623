package diff3

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

// editOp is one step of an edit script from a to b. Equal and delete ops
// carry an a line, insert ops carry a b line.
type editOp struct {
	kind opKind
	line string
}

// myersDiff computes a shortest edit script from a to b using the greedy
// forward variant of Myers' algorithm, O((N+M)D) time.
func myersDiff(a, b []string) []editOp {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		ops := make([]editOp, m)
		for i, line := range b {
			ops[i] = editOp{kind: opInsert, line: line}
		}
		return ops
	}
	if m == 0 {
		ops := make([]editOp, n)
		for i, line := range a {
			ops[i] = editOp{kind: opDelete, line: line}
		}
		return ops
	}

	bound := n + m
	v := make([]int, 2*bound+1)
	var trace [][]int

	for d := 0; d <= bound; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + bound
			var x int
			if k == -d || (k != d && v[idx-1] < v[idx+1]) {
				x = v[idx+1]
			} else {
				x = v[idx-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[idx] = x
			if x >= n && y >= m {
				snapshot := make([]int, len(v))
				copy(snapshot, v)
				trace = append(trace, snapshot)
				return backtrack(trace, a, b, d)
			}
		}
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)
	}
	return nil
}

// backtrack walks the trace from the end state back to the origin,
// emitting the edit script in reverse and flipping it at the end.
func backtrack(trace [][]int, a, b []string, d int) []editOp {
	bound := len(a) + len(b)
	x, y := len(a), len(b)

	var rev []editOp
	for ; d > 0; d-- {
		k := x - y
		idx := k + bound
		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vPrev[prevK+bound]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			rev = append(rev, editOp{kind: opEqual, line: a[x]})
		}
		if prevK == k+1 {
			y--
			rev = append(rev, editOp{kind: opInsert, line: b[y]})
		} else {
			x--
			rev = append(rev, editOp{kind: opDelete, line: a[x]})
		}
	}
	for x > 0 {
		x--
		y--
		rev = append(rev, editOp{kind: opEqual, line: a[x]})
	}

	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
