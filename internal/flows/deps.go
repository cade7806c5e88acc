package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/session"
)

// SessionWriter is the persistence surface flows need.
type SessionWriter interface {
	Save(ctx context.Context, s *session.Session) error
	Remove(ctx context.Context) error
}

// Deps groups flow dependency sets. The Manager builds this once and
// delegates operations to the matching flow.
type Deps struct {
	API      backend.API
	Sessions SessionWriter
	Now      func() time.Time
}
