package chat

// HistorySink receives a best-effort copy of every broadcast fanned
// out to a named room, for operator-side replay. Never on the
// synchronous delivery path: a slow or failing sink must not affect
// message delivery.
type HistorySink interface {
	AppendHistory(room string, envelope []byte)
}

// ReportSink receives moderation reports filed by clients against one
// another via a {type:"report"} frame.
type ReportSink interface {
	FileReport(room, reporterUID, subjectUID, reason string)
}
