// Package logger adapts common logging libraries to objdb.Logger.
//
// The standard library's *slog.Logger already implements objdb.Logger, so it
// needs no adapter.
//
// Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//
//	db, err := objdb.Open("data.db", objdb.WithLogger(logger.NewZap(zapLogger)))
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
package logger
