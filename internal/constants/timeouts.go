package constants

import "time"

// UpstreamGenerateTimeout bounds a non-streaming upstream call end to end.
// Streaming calls are deliberately excluded (§4.6: body streaming has no
// deadline beyond the client's own).
const UpstreamGenerateTimeout = 180 * time.Second
