package types //nolint:revive // types is a valid package name

// Version is the canonical module version, reported by cmd/netlogctl and
// cmd/netlogd.
const Version = "0.1.0"
