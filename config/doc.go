// Package config loads meshcall settings from the environment.
//
// Every variable carries the MESHCALL_ prefix and has a default, so an empty
// environment yields a working configuration:
//
//	MESHCALL_APP_ID               mesh application namespace
//	MESHCALL_RELAY_URLS           comma-separated mesh relay URLs
//	MESHCALL_RELAY_REDUNDANCY     relays each peer connects to
//	MESHCALL_RELAY_PROBE          probe relays before joining (default false)
//	MESHCALL_RELAY_PROBE_TIMEOUT  per-relay probe timeout
//	MESHCALL_INVITE_MAX_ATTEMPTS  connection attempts per invitee
//	MESHCALL_INVITE_RING_WINDOW   how long an invitation rings
//	MESHCALL_INVITE_RETRY_PAUSE   pause between failed attempts
//	MESHCALL_INVITE_CONNECT_TIMEOUT  wait for a connection to open
//	MESHCALL_NO_ANSWER_WINDOW     wait before an empty call times out
//	MESHCALL_END_CALL_FEEDBACK    grace period after the timeout notice
//	MESHCALL_SPEAKING_HYSTERESIS  hold time of the speaking indicator
//	MESHCALL_NOISE_SUPPRESSION    suppression strength in [0, 1]
//	MESHCALL_LOG_LEVEL            logrus level name
//	MESHCALL_LOG_FORMAT           text or json
//	MESHCALL_HTTP_ADDR            sandbox listen address
package config
