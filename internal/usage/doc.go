// Package usage persists successful token counts and aggregates them per model.
//
// Store works on any GORM dialect opened by internal/database; tests use the
// pure-Go sqlite driver.
package usage
