package shuffle

import (
	"strings"

	"github.com/INLOpen/nexusdata/core"
)

// Classifier derives a class label from an entry's output payload. It must be
// a pure function: identical payloads always yield the same label.
type Classifier func(output []float32) uint32

// ArgMax labels an entry with the index of its largest output neuron. The
// lowest index wins ties.
func ArgMax(output []float32) uint32 {
	best := 0
	for i := 1; i < len(output); i++ {
		if output[i] > output[best] {
			best = i
		}
	}
	return uint32(best)
}

// Threshold labels single-output entries: 1 when output[0] >= t, otherwise 0.
func Threshold(t float32) Classifier {
	return func(output []float32) uint32 {
		if len(output) > 0 && output[0] >= t {
			return 1
		}
		return 0
	}
}

// ClassifierByName resolves the classifier names accepted in configuration.
func ClassifierByName(name string, threshold float32) (Classifier, error) {
	switch strings.ToLower(name) {
	case "", "argmax":
		return ArgMax, nil
	case "threshold":
		return Threshold(threshold), nil
	default:
		return nil, &core.ValidationError{Field: "classifier", Value: name, Message: "unknown classifier, expected argmax or threshold"}
	}
}
