//go:build race

package bulwark

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// Race builds run much slower, keep hashing near the minimum.
	return bcrypt.MinCost
}
