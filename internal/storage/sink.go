package storage

import (
	"context"
	"time"

	"tgsender/internal/dispatch"
	"tgsender/pkg/logx"
)

// Sink adapts a Store to the dispatch history interface. Append failures
// are logged and dropped so persistence trouble never stalls sending.
func Sink(st Store, log logx.Logger) dispatch.History {
	return &sink{st: st, log: log}
}

type sink struct {
	st  Store
	log logx.Logger
}

func (s *sink) Record(ctx context.Context, rec dispatch.SendRecord) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.st.Append(wctx, rec); err != nil {
		s.log.Warn("history append failed",
			logx.String("group", rec.Group),
			logx.String("msg", rec.MessageID),
			logx.Err(err))
	}
}
