// Package protocol defines the protocol.ID type used to tag streams after
// multistream-select negotiation, per spec.md §4.11.
package protocol

// ID is a libp2p application protocol identifier, e.g. "/ipfs/id/1.0.0".
type ID string

// ConvertToStrings is a convenience for call sites (e.g. multistream-select)
// that need []string rather than []ID.
func ConvertToStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// ConvertFromStrings is the inverse of ConvertToStrings.
func ConvertFromStrings(strs []string) []ID {
	out := make([]ID, len(strs))
	for i, s := range strs {
		out[i] = ID(s)
	}
	return out
}
