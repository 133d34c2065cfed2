package optimize

import (
	"bufio"
	"strconv"
	"strings"
)

// ReadFloats converts a whitespace-separated string of numbers into a
// slice of float64.
func ReadFloats(s string) ([]float64, error) {
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Split(bufio.ScanWords)
	var result []float64
	for scanner.Scan() {
		x, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return result, err
		}
		result = append(result, x)
	}
	return result, scanner.Err()
}
