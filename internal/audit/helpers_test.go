package audit

import (
	"context"

	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

func contextWithMeta(actor, ip, ua string) context.Context {
	return shared.ContextWithRequestMeta(context.Background(), shared.RequestMeta{Actor: actor, IPAddress: ip, UserAgent: ua})
}
