/*
Package log provides structured logging for the MDS pipeline using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with pipeline-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Configuration:
  - Level: debug / info / warn / error
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: add a component name to all logs
  - WithProvider: add the mobility provider name
  - WithBlock: add schedule_id and the block's hour tag
  - WithStage: add the pipeline stage (extract, sync_db, sync_socrata)

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component and block logging:

	logger := log.WithComponent("pipeline")
	logger.Info().Msg("run started")

	blockLog := log.WithBlock(1021, "2020-1-1-17")
	blockLog.Info().Int("trips", 113).Msg("extract finished")

JSON output:

	{"level":"info","schedule_id":1021,"block":"2020-1-1-17","trips":113,
	 "time":"2020-01-02T10:30:00Z","message":"extract finished"}

# Log Levels

Debug is for per-request and per-trip detail; info is the default
production level covering stage and block outcomes; warn marks recoverable
conditions such as retries and soft failures; error marks failed stages;
fatal logs and exits for unrecoverable startup errors.
*/
package log
