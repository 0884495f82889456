package ieventrepo

import (
	"context"

	"github.com/covacitrees/oms/internal/service/models/providerevent"
)

// IProviderEventRepository persists the set of provider events already
// applied. Record reports false when the event tuple was seen before, which
// makes webhook redelivery a guaranteed no-op across process restarts.
type IProviderEventRepository interface {
	Record(ctx context.Context, ev providerevent.ProviderEvent) (newly bool, err error)
}
