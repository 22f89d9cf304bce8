// Package logging builds the structured slog logger shared by satlinkd
// and satctl.
//
// Configuration comes from the logging section of satlink.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The level can be changed at runtime with SetLevel; satlinkd toggles
// debug logging on SIGUSR1.
//
// Unicable PINs are never logged.
package logging
