// Package logx configures urlwatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - JSON lines available for log collectors
//   - Optional file output, JSON-structured
package logx
