// Package device manages the fleet device model: persistence, the
// telemetry topic codec, and the active-subscription set used when a
// broker session is opened.
//
// Topics always have the shape {user_id}/{device_id}/{name}. The codec
// is the single authority for composing and decomposing them; nothing
// else in the codebase splits topic strings by hand.
package device
