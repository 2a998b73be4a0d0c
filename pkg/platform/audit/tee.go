package audit

import (
	"context"
	"log/slog"
)

// Tee appends to a primary appender and then to each mirror. Only the
// primary's error is returned; mirror failures are logged.
func Tee(primary Appender, logger *slog.Logger, mirrors ...Appender) Appender {
	if len(mirrors) == 0 {
		return primary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tee{primary: primary, mirrors: mirrors, logger: logger}
}

type tee struct {
	primary Appender
	mirrors []Appender
	logger  *slog.Logger
}

func (t *tee) Append(ctx context.Context, record Record) error {
	err := t.primary.Append(ctx, record)
	for _, m := range t.mirrors {
		if merr := m.Append(ctx, record); merr != nil {
			t.logger.WarnContext(ctx, "audit mirror append failed",
				"record_id", record.ID,
				"error", merr,
			)
		}
	}
	return err
}
