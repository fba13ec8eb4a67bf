// Package confloader loads server configuration from layered sources with
// priority: environment > file > defaults. A koanf instance does the
// merging; an fsnotify watcher drives reload of the settings that are safe
// to change at runtime.
package confloader
