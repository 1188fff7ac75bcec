// Package codec maps contacts to and from the Atom/GData entry format used by
// the shared-contacts feed.
//
// Encoding is asymmetric: EncodeDraft only emits the scalar fields of a
// contacts.Draft (one primary email, extra home emails, one phone, one
// address), while Decode collects every email and phone the service reports.
// EncodeContact and EncodeFeed render the service side of the exchange and are
// used by the in-memory backend and fixtures.
package codec

// XML namespaces used on the wire.
const (
	NamespaceAtom       = "http://www.w3.org/2005/Atom"
	NamespaceGData      = "http://schemas.google.com/g/2005"
	NamespaceOpenSearch = "http://a9.com/-/spec/opensearch/1.1/"
)

// Category and relation values.
const (
	KindScheme  = "http://schemas.google.com/g/2005#kind"
	ContactKind = "http://schemas.google.com/contact/2008#contact"

	RelWork = "http://schemas.google.com/g/2005#work"
	RelHome = "http://schemas.google.com/g/2005#home"

	linkRelEdit = "edit"
	linkRelNext = "next"
	primaryTrue = "true"

	// ContentType is the media type for entry and feed documents.
	ContentType = "application/atom+xml"
)
