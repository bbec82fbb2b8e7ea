package broker

import (
	"fmt"
	"os"
)

// EntityFromFile reads path, discards its first byte (an on-disk format
// marker this client does not interpret), and calls SetEntity with the
// rest.
func (c *Client) EntityFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("broker: reading entity file %s: %w", path, err)
	}
	if len(data) == 0 {
		return c.SetEntity(SetEntityOptions{})
	}
	return c.SetEntity(SetEntityOptions{Entity: data[1:]})
}
