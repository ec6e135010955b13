package hooks

import "net/http"

// UpgradeIntent is set on a Result by a WS hook that wants the request
// to proceed through the WebSocket upgrade state machine instead of
// being written as a plain HTTP response. Tag identifies which
// whitelisted WS path matched ("" for the bare API socket, the room
// name for a room socket).
type UpgradeIntent struct {
	Tag string
}

// Result is what a Hook's Evaluate returns: either Claimed is false
// (decline, try the next hook) or it is true and Status/Header/Body
// (or Upgrade) describe the response.
type Result struct {
	Claimed bool
	Status  int
	Header  http.Header
	Body    []byte
	Upgrade *UpgradeIntent
}

// Decline is the zero Result: the hook did not claim the request.
func Decline() Result { return Result{} }

// Claim builds a claimed plain-HTTP Result.
func Claim(status int, header http.Header, body []byte) Result {
	return Result{Claimed: true, Status: status, Header: header, Body: body}
}

// ClaimUpgrade builds a claimed Result that hands off to the WS
// upgrade step with the given tag.
func ClaimUpgrade(tag string) Result {
	return Result{Claimed: true, Upgrade: &UpgradeIntent{Tag: tag}}
}
