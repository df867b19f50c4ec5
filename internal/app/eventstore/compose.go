package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/tutuledger/internal/domain"
	"github.com/tutu-network/tutuledger/internal/security"
)

// Compose builds and signs a new event authored by kp.
// The payload is marshaled as-is; ingestion validates it.
func Compose(kp *security.Keypair, channel string, typ domain.EventType, payload any, clock uint64, now time.Time) (domain.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	ev := domain.Event{
		ID:      uuid.NewString(),
		Channel: channel,
		Type:    typ,
		Payload: raw,
		Clock:   clock,
		Time:    now.UnixMilli(),
	}
	return security.SignEvent(kp, ev)
}
