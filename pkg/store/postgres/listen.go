package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/worklin/worklin/pkg/store/changefeed"
)

// notifyFunction sends {table, id, parent} for every written row. The
// trigger argument names the parent column.
const notifyFunction = `
CREATE OR REPLACE FUNCTION worklin_notify_change() RETURNS trigger AS $$
DECLARE
	payload jsonb;
BEGIN
	IF TG_OP = 'DELETE' THEN
		payload := to_jsonb(OLD);
	ELSE
		payload := to_jsonb(NEW);
	END IF;
	PERFORM pg_notify('` + Channel + `', json_build_object(
		'table', TG_TABLE_NAME,
		'id', payload ->> 'id',
		'parent', COALESCE(payload ->> TG_ARGV[0], '')
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

func triggerStatements(table, parentColumn string) []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS worklin_%[1]s_notify ON %[1]s", table),
		fmt.Sprintf(`CREATE TRIGGER worklin_%[1]s_notify
	AFTER INSERT OR UPDATE OR DELETE ON %[1]s
	FOR EACH ROW EXECUTE FUNCTION worklin_notify_change('%[2]s')`, table, parentColumn),
	}
}

// reconnectDelay is the pause between listener reconnect attempts.
const reconnectDelay = time.Second

func (s *Store) connectListener(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	return conn, nil
}

// listen forwards notifications to the feed until ctx is cancelled. A lost
// connection is re-established, after which every subscriber refreshes since
// changes may have been missed.
func (s *Store) listen(ctx context.Context, conn *pgx.Conn) {
	defer close(s.done)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			var err error
			if conn, err = s.connectListener(ctx); err != nil {
				if ctx.Err() == nil {
					s.log.Warn().Err(err).Msg("change listener reconnect failed")
				}
				conn = nil
				continue
			}
			s.log.Info().Msg("change listener reconnected")
			s.feed.Broadcast()
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("change listener lost its connection")
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		var change changefeed.Change
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			s.log.Warn().Err(err).Str("payload", n.Payload).Msg("ignoring malformed change notification")
			continue
		}
		s.feed.Publish(change)
	}
}
