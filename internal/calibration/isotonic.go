package calibration

// block is a pooled run of adjacent samples sharing one fitted value
type block struct {
	sum    float64
	weight float64
	count  int
}

func (b block) mean() float64 {
	return b.sum / b.weight
}

// isotonicFit runs pool-adjacent-violators over outcomes already sorted by
// score and returns one nondecreasing fitted value per sample. Samples with
// equal scores are pooled first so ties always share a value.
func isotonicFit(samples []Sample) []float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}

	stack := make([]block, 0, n)
	for i := 0; i < n; {
		j := i
		var b block
		for j < n && samples[j].Score == samples[i].Score {
			b.sum += outcomeValue(samples[j].Outcome)
			b.weight++
			b.count++
			j++
		}
		stack = append(stack, b)
		for len(stack) > 1 && stack[len(stack)-2].mean() > stack[len(stack)-1].mean() {
			top := stack[len(stack)-1]
			prev := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, block{
				sum:    prev.sum + top.sum,
				weight: prev.weight + top.weight,
				count:  prev.count + top.count,
			})
		}
		i = j
	}

	fitted := make([]float64, 0, n)
	for _, b := range stack {
		m := b.mean()
		for k := 0; k < b.count; k++ {
			fitted = append(fitted, m)
		}
	}
	return fitted
}

func outcomeValue(outcome bool) float64 {
	if outcome {
		return 1
	}
	return 0
}
