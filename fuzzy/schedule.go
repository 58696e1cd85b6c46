package fuzzy

// NeverSample marks an edge the optimizer should never pick.
const NeverSample = -1.0

// AutoEpochs selects the epoch budget from the dataset size: small datasets
// can afford more optimization passes.
func AutoEpochs(nSamples int) int {
	if nSamples <= 10000 {
		return 500
	}
	return 200
}

// PruneForEpochs drops edges too weak to ever be scheduled: any weight below
// maxWeight/nEpochs would receive a period longer than the whole run.
func PruneForEpochs(m Coo, nEpochs int) Coo {
	max := m.MaxWeight()
	if max == 0 {
		return m
	}
	threshold := max / float64(nEpochs)

	out := Coo{NRow: m.NRow, NCol: m.NCol}
	for i := range m.Data {
		if m.Data[i] >= threshold {
			out.Rows = append(out.Rows, m.Rows[i])
			out.Cols = append(out.Cols, m.Cols[i])
			out.Data = append(out.Data, m.Data[i])
		}
	}
	return out
}

// EpochsPerSample converts edge weights into sampling periods: the strongest
// edge is sampled every epoch, an edge at half the maximum weight every
// second epoch, and so on. Zero-weight edges get the NeverSample sentinel.
// An all-zero weight vector yields a no-op schedule.
func EpochsPerSample(weights []float64, nEpochs int) []float64 {
	result := make([]float64, len(weights))
	var max float64
	for _, w := range weights {
		if w > max {
			max = w
		}
	}
	for i := range result {
		result[i] = NeverSample
	}
	if max == 0 {
		return result
	}
	for i, w := range weights {
		nSamples := float64(nEpochs) * (w / max)
		if nSamples > 0 {
			result[i] = float64(nEpochs) / nSamples
		}
	}
	return result
}
