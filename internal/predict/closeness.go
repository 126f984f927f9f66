package predict

// Thresholds for the "how close is the AI" indicator. A score lights up the
// bucket immediately above it.
var Thresholds = []float64{0, 0.4, 0.6, 0.85, 1}

// Bucket maps a similarity score onto the smallest threshold strictly above
// it. Scores at or beyond the top threshold return the top threshold.
func Bucket(score float64) float64 {
	for _, t := range Thresholds {
		if t > score {
			return t
		}
	}
	return Thresholds[len(Thresholds)-1]
}

// Max reports whether a score has hit the top of the similarity scale.
func Max(score float64) bool { return score >= Thresholds[len(Thresholds)-1] }
