package prompt

import "unicode/utf8"

// Estimator approximates the token count of text.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator counts one token per four characters, rounded up.
type CharEstimator struct{}

// Estimate implements Estimator.
func (CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(string) int

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(text string) int {
	return f(text)
}
