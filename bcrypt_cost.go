//go:build !race

package bulwark

const defaultPasswordHashCost = 12

func passwordHashCost() int {
	return defaultPasswordHashCost
}
