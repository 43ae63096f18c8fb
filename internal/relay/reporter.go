package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/pkg/protocol"
)

// Reporter delivers a ChatError to the narrowest audience it names.
type Reporter struct {
	conns   *directory.Connections
	dialogs *directory.Dialogs
	logs    LogSink
	logger  *slog.Logger
}

// NewReporter creates a Reporter. Unscoped errors go to logs.
func NewReporter(conns *directory.Connections, dialogs *directory.Dialogs, logs LogSink, logger *slog.Logger) *Reporter {
	return &Reporter{
		conns:   conns,
		dialogs: dialogs,
		logs:    logs,
		logger:  logger.With("component", "reporter"),
	}
}

// Report sends e as an error notice. The connection scope wins over the user
// scope, which wins over the dialog scope; only one of them is used.
func (rp *Reporter) Report(ctx context.Context, e *ChatError) {
	if e == nil || e.Message == "" {
		return
	}

	if !e.Scoped() {
		rp.logs.LogError(ctx, e.Message, logAttrs(e)...)
		return
	}

	data, err := json.Marshal(protocol.NewErrorNotice(e.Message))
	if err != nil {
		rp.logger.Warn("marshal error notice", "error", err)
		return
	}

	switch {
	case e.Conn != nil:
		rp.send(e.Conn, data)

	case e.UserID != 0:
		conn, ok := rp.conns.ConnFor(e.UserID)
		if !ok {
			attrs := append(logAttrs(e), "user_id", int64(e.UserID))
			rp.logs.LogError(ctx, "undeliverable error notice: "+e.Message, attrs...)
			return
		}
		rp.send(conn, data)

	default:
		info, err := rp.dialogs.Info(ctx, e.DialogID)
		if err != nil {
			attrs := append(logAttrs(e), "dialog_id", int64(e.DialogID), "lookup_error", err.Error())
			rp.logs.LogError(ctx, "undeliverable error notice: "+e.Message, attrs...)
			return
		}
		online, _ := rp.conns.ConnsFor(info.Members)
		for _, member := range info.Members {
			if conn, ok := online[member]; ok {
				rp.send(conn, data)
			}
		}
	}
}

func (rp *Reporter) send(conn directory.Conn, data []byte) {
	if err := conn.Send(data); err != nil {
		rp.logger.Debug("error notice not delivered", "conn_id", conn.ID(), "error", err)
	}
}

func logAttrs(e *ChatError) []any {
	attrs := []any{"kind", e.Kind.String()}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
	}
	return attrs
}
