// Package logger provides adapters for popular logging libraries to work
// with kdb's Logger interface.
//
// Example with zap:
//
//	import (
//	    "kdb"
//	    "kdb/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    db, err := kdb.Open("data.kdb", kdb.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer db.Close()
//	}
package logger
