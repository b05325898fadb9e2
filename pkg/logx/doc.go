// Package logx provides the bot's structured logging on top of zerolog.
//
// A single Service owns the sinks (console, file, Telegram log chat) and can
// re-apply configuration at runtime without invalidating handed-out Loggers.
package logx
