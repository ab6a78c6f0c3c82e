// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a value-type Logger with functional fields, plus a Service that
// owns the sink configuration (console/file) and can swap it at runtime via
// Apply() without invalidating loggers already handed out.
package logx
