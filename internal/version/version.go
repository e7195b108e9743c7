package version

// Version is the release version stamped into the default User-Agent.
const Version = "0.4.0"

// UserAgent returns the identifier sent on outbound requests unless a
// provider overrides it.
func UserAgent() string {
	return "research-master/" + Version
}
