package progress

// ResolveUnlocks derives, per lesson position, whether the viewer may open
// that lesson. completed must follow course order (order_index ascending).
// The first lesson is always open; each later lesson opens once the one
// before it is completed. Pure view, recomputed on every course read.
func ResolveUnlocks(completed []bool) []bool {
	unlocked := make([]bool, len(completed))
	for i := range completed {
		if i == 0 {
			unlocked[i] = true
			continue
		}
		unlocked[i] = completed[i-1]
	}
	return unlocked
}
