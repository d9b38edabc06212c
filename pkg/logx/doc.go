// Package logx wraps zerolog behind a small Logger/Field API.
//
// The Service owns the configured sinks (console, JSON file, and an optional
// Telegram notification sink for WARN+ operational events) and can re-apply
// its config at runtime without invalidating loggers handed out earlier.
package logx
