package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// PlanKey addresses the cached plan of a telescope for one Julian day, as
// built under the given plan generation.
func PlanKey(telescopeID uuid.UUID, jdn int, generation int64) string {
	return fmt.Sprintf("plan:%s:%d:%d", telescopeID, jdn, generation)
}

// PlanGenerationKey holds the counter that is bumped whenever any plan of the
// telescope changes.
func PlanGenerationKey(telescopeID uuid.UUID) string {
	return fmt.Sprintf("plangen:%s", telescopeID)
}

// TLEKey addresses the last published element set of a catalogued satellite.
func TLEKey(catalogNumber int) string {
	return fmt.Sprintf("tle:%d", catalogNumber)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
