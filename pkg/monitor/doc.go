/*
Package monitor implements a small HTTP API and WebSocket feed for watching and driving a force
meter from a browser or a script.

Endpoints:

	GET  /api/state                   current state, latest reading and decoder counters
	POST /api/scan                    start discovery
	POST /api/tare                    zero both channels
	POST /api/calibrate/{a|b}?factor= set a channel's calibration factor
	POST /api/disconnect              tear down the link
	GET  /ws                          stream of {"type": "state"|"reading"|"ack", "data": ...}

Replies use the envelope {"response": ..., "error": ..., "error_description": ...}.
*/
package monitor
