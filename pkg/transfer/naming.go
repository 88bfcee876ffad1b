package transfer

import (
	"fmt"
	"path"
	"strings"
)

// MaxNameTries bounds the search for a free sink-side name
const MaxNameTries = 10000

// NextFreeName returns name if free, otherwise "<stem> (n)<ext>" for the
// smallest free n >= 1
func NextFreeName(name string, taken func(candidate string) (bool, error)) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < MaxNameTries; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d tries", name, MaxNameTries)
}
