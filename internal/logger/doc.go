// Package logger wraps zap to provide:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level switching,
//   - leveled convenience functions (Info, InfoKV, WarnKV, ErrorKV and friends).
//
// Services take a context and pull the logger from it, so a stage run can be
// scoped with a name and a run identifier once and logged consistently below.
package logger
