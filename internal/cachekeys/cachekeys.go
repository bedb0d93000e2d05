/*
 * internal/cachekeys/cachekeys.go
 *
 * Consistent key construction for de-duplicating access review probes.
 */

package cachekeys

import "fmt"

// BuildAction generates a consistent key for a single access review probe,
// identified by its group/version resource string and the verb under test.
// Used to deduplicate probes when two ResourceTypes map to overlapping
// GroupResources under the same verb.
func BuildAction(groupResource, verb string) string {
	return fmt.Sprintf("%s:%s", groupResource, verb)
}
