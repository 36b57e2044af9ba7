// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Cooldown windows, so rate limits survive a restart
//   - Dispatch audit appends (one row per executed command)
package storage
