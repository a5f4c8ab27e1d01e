// Package logx configures sysmonitor's structured logging.
//
// The package wraps zerolog (logx.Logger) to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional chat sink for warnings (min-level + rate limiting)
package logx
