package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

// Both backends store each field as its JSON text.

// Encode renders the two persisted fields.
func Encode(s domain.Settings) (sites, flag []byte, err error) {
	c := s.Clone()
	sites, err = json.Marshal(c.BlockedSites)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", KeyBlockedSites, err)
	}
	flag, err = json.Marshal(c.IsBlocking)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", KeyIsBlocking, err)
	}
	return sites, flag, nil
}

// Decode rebuilds a record from raw field values; a nil value means the key
// was never written and keeps its default.
func Decode(sites, flag []byte) (domain.Settings, error) {
	out := domain.DefaultSettings()
	if sites != nil {
		var list []string
		if err := json.Unmarshal(sites, &list); err != nil {
			return domain.Settings{}, fmt.Errorf("decode %s: %w", KeyBlockedSites, err)
		}
		if list != nil {
			out.BlockedSites = list
		}
	}
	if flag != nil {
		if err := json.Unmarshal(flag, &out.IsBlocking); err != nil {
			return domain.Settings{}, fmt.Errorf("decode %s: %w", KeyIsBlocking, err)
		}
	}
	return out, nil
}

// Timestamped is implemented by stores that record when they were last saved.
type Timestamped interface {
	Updated(ctx context.Context) (time.Time, error)
}
