// Package types defines core domain types for the askstream client.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// The CLI and the stream-completed notification contract share this version.
const Version = "0.3.0"

// ContractVersion is the version stamped on published notifications.
const ContractVersion = Version
