/*
Package config holds the settings for the command-line tools,
image_analyzer and info. The decoding library itself takes no
configuration and reads no environment variables; everything in this
package governs only how the CLI wraps it — logging verbosity, the
VFS resolver's cache sizing, and the signature scanner's read window.

A Configuration is built with NewDefault and optionally overridden by
a YAML file via LoadFromFile. Fields the file omits keep their default
value rather than being zeroed, so a config file only needs to name
what it changes:

	cache:
	  capacity: 256
	scan:
	  window_bytes: 4194304

Validate rejects settings that would make the CLI misbehave outright
(a non-positive cache capacity or scan window, an unrecognized logging
level) rather than merely perform poorly.
*/
package config
