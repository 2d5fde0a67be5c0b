/*
Package log provides structured logging for hoard using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
context-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Usage

Initializing the logger:

	import "github.com/madcowbg/hoard/pkg/log"

	// JSON output (production, selected in cmd/hoard with --log-json)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development, --log-json=false)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("reconciler started")
	log.Debug("loaded hoard config")
	log.Warn("cave heartbeat missed")
	log.Error("pull failed")

Structured logging:

	log.Logger.Info().
		Str("cave", caveUUID).
		Int("pending_ops", n).
		Msg("flushed deferred operations")

Context loggers:

	caveLog := log.WithCave(caveUUID)
	caveLog.Info().Msg("pull started")

	pathLog := log.WithCave(caveUUID).With().Str("path", p.AsPosix()).Logger()
	pathLog.Debug().Msg("deciding pull preference")

# Log levels

Debug is for tree-walk and merge-step detail, Info for per-cave pull/push
lifecycle events and CLI command outcomes, Warn for recoverable
inconsistencies (e.g. a cave config referencing an unmounted path), and
Error for operations that failed and were aborted. Fatal exits the process
and is reserved for unrecoverable startup failures (e.g. the object store
cannot be opened).

# Context fields

  - cave: a cave's UUID or configured name
  - root: the named root (a cave UUID or HOARD) a log line concerns
  - path: a hoard path involved in the operation
  - object_id: a blob or tree Object ID, hex-encoded
  - component: the subsystem emitting the log (reconciler, merge, gc, cli)

# Security

Never log file contents or full local filesystem paths outside the hoard
mount; hoard paths and object IDs are safe to log since they carry no
secrets.
*/
package log
