package anomaly

// window is a bounded FIFO of samples. Pushing into a full window drops
// the oldest sample. Callers synchronize access.
type window struct {
	values []float64
	limit  int
}

func newWindow(limit int) *window {
	return &window{values: make([]float64, 0, limit), limit: limit}
}

func (w *window) push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.limit {
		w.values = w.values[1:]
	}
}

func (w *window) len() int {
	return len(w.values)
}
