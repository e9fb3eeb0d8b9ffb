package analysis

// Log files run to tens of thousands of rows, and a recursive sort or
// reduction whose call depth scales with row count can blow the stack.
// Everything row-scaled in this package is therefore ordered with the
// bottom-up (iterative) merge sort below and reduced with plain loops.

// mergeSort sorts items in place, stably, without recursion.
func mergeSort[T any](items []T, less func(a, b T) bool) {
	n := len(items)
	if n < 2 {
		return
	}
	buf := make([]T, n)
	for width := 1; width < n; width *= 2 {
		for lo := 0; lo < n; lo += 2 * width {
			mid := lo + width
			if mid >= n {
				continue
			}
			hi := lo + 2*width
			if hi > n {
				hi = n
			}
			merge(items, buf, lo, mid, hi, less)
		}
	}
}

func merge[T any](items, buf []T, lo, mid, hi int, less func(a, b T) bool) {
	copy(buf[lo:hi], items[lo:hi])
	i, j := lo, mid
	for k := lo; k < hi; k++ {
		switch {
		case i >= mid:
			items[k] = buf[j]
			j++
		case j >= hi:
			items[k] = buf[i]
			i++
		case less(buf[j], buf[i]):
			items[k] = buf[j]
			j++
		default:
			items[k] = buf[i]
			i++
		}
	}
}
