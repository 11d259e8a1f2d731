//go:build noheuristics

package heuristic

// Enabled сообщает, что анализатор включён в сборку.
const Enabled = false
