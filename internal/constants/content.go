package constants

// Candidate page paths probed on every venue website, in fetch order.
// These are kept as constants to centralize path comparisons; config may
// replace the set per deployment.
var DefaultCandidatePaths = []string{
	"/menu",
	"/specials",
	"/happy-hour",
	"/happyhour",
	"/events",
	"/about",
}

// TruncationMarker is appended wherever page content is cut at a byte cap,
// so downstream hashing still registers large changes past the cap.
const TruncationMarker = "[TRUNCATED]"
