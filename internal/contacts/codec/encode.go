package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"contactdir/internal/contacts"
)

// Outgoing documents carry the atom/gd prefixes literally so the envelope
// matches what the service documents.

type outCategory struct {
	Scheme string `xml:"scheme,attr"`
	Term   string `xml:"term,attr"`
}

type outName struct {
	GivenName  string `xml:"gd:givenName"`
	FamilyName string `xml:"gd:familyName"`
	FullName   string `xml:"gd:fullName"`
}

type outContent struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type outEmail struct {
	Rel         string `xml:"rel,attr"`
	Primary     string `xml:"primary,attr,omitempty"`
	Address     string `xml:"address,attr"`
	DisplayName string `xml:"displayName,attr,omitempty"`
}

type outPhone struct {
	Rel     string `xml:"rel,attr"`
	Primary string `xml:"primary,attr,omitempty"`
	Number  string `xml:",chardata"`
}

type outPostal struct {
	Rel      string `xml:"rel,attr"`
	Primary  string `xml:"primary,attr,omitempty"`
	City     string `xml:"gd:city"`
	Street   string `xml:"gd:street"`
	Region   string `xml:"gd:region"`
	Postcode string `xml:"gd:postcode"`
	Country  string `xml:"gd:country"`
}

type outLink struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr,omitempty"`
	Href string `xml:"href,attr"`
}

type outEntry struct {
	XMLName  xml.Name    `xml:"atom:entry"`
	AtomNS   string      `xml:"xmlns:atom,attr,omitempty"`
	GDNS     string      `xml:"xmlns:gd,attr,omitempty"`
	ID       string      `xml:"atom:id,omitempty"`
	Category outCategory `xml:"atom:category"`
	Name     outName     `xml:"gd:name"`
	Content  outContent  `xml:"atom:content"`
	Links    []outLink   `xml:"atom:link"`
	Emails   []outEmail  `xml:"gd:email"`
	Phones   []outPhone  `xml:"gd:phoneNumber"`
	Address  *outPostal  `xml:"gd:structuredPostalAddress"`
}

type outFeed struct {
	XMLName      xml.Name   `xml:"atom:feed"`
	AtomNS       string     `xml:"xmlns:atom,attr"`
	GDNS         string     `xml:"xmlns:gd,attr"`
	OpenSearchNS string     `xml:"xmlns:openSearch,attr"`
	TotalResults string     `xml:"openSearch:totalResults"`
	Links        []outLink  `xml:"atom:link"`
	Entries      []outEntry `xml:"atom:entry"`
}

// EncodeDraft renders a draft as a standalone entry document for create and
// update requests.
//
// Exactly one primary work email is always emitted, seeded from Draft.Email
// (possibly empty); AdditionalEmails follow as non-primary home emails. A phone
// element is emitted only for a non-empty Draft.Phone and an address element
// only when Draft.Address is set. Values are XML-escaped.
func EncodeDraft(d contacts.Draft) ([]byte, error) {
	entry := outEntry{
		AtomNS:   NamespaceAtom,
		GDNS:     NamespaceGData,
		Category: outCategory{Scheme: KindScheme, Term: ContactKind},
		Name: outName{
			GivenName:  d.FirstName,
			FamilyName: d.LastName,
			FullName:   d.ResolvedFullName(),
		},
		Content: outContent{Type: "text", Text: d.Notes},
	}

	entry.Emails = make([]outEmail, 0, 1+len(d.AdditionalEmails))
	entry.Emails = append(entry.Emails, outEmail{
		Rel:         RelWork,
		Primary:     primaryTrue,
		Address:     d.Email,
		DisplayName: d.ResolvedDisplayName(),
	})
	for _, addr := range d.AdditionalEmails {
		entry.Emails = append(entry.Emails, outEmail{Rel: RelHome, Address: addr})
	}

	if d.Phone != "" {
		entry.Phones = []outPhone{{Rel: RelWork, Primary: primaryTrue, Number: d.Phone}}
	}
	if d.Address != nil {
		entry.Address = postal(*d.Address, RelWork, true)
	}

	return marshalDocument(entry)
}

// EncodeContact renders a contact the way the service reports it: with its id,
// edit link, and every email and phone.
func EncodeContact(c contacts.Contact) ([]byte, error) {
	entry := contactEntry(c)
	entry.AtomNS = NamespaceAtom
	entry.GDNS = NamespaceGData
	return marshalDocument(entry)
}

// EncodeFeed renders a single-page feed holding the given contacts.
func EncodeFeed(cs []contacts.Contact) ([]byte, error) {
	return EncodeFeedPage(FeedPage{Contacts: cs, TotalResults: len(cs)})
}

// EncodeFeedPage renders one feed page, including its next link when set.
func EncodeFeedPage(page FeedPage) ([]byte, error) {
	feed := outFeed{
		AtomNS:       NamespaceAtom,
		GDNS:         NamespaceGData,
		OpenSearchNS: NamespaceOpenSearch,
		TotalResults: strconv.Itoa(page.TotalResults),
		Entries:      make([]outEntry, 0, len(page.Contacts)),
	}
	if page.Next != "" {
		feed.Links = []outLink{{Rel: linkRelNext, Type: ContentType, Href: page.Next}}
	}
	for _, c := range page.Contacts {
		feed.Entries = append(feed.Entries, contactEntry(c))
	}
	return marshalDocument(feed)
}

func contactEntry(c contacts.Contact) outEntry {
	entry := outEntry{
		ID:       c.ID,
		Category: outCategory{Scheme: KindScheme, Term: ContactKind},
		Name: outName{
			GivenName:  c.FirstName,
			FamilyName: c.LastName,
			FullName:   c.FullName,
		},
		Content: outContent{Type: "text", Text: c.Notes},
	}
	if c.EditURL != "" {
		entry.Links = []outLink{{Rel: linkRelEdit, Type: ContentType, Href: c.EditURL}}
	}
	for _, e := range c.Emails {
		entry.Emails = append(entry.Emails, outEmail{
			Rel:         e.Relation,
			Primary:     flag(e.Primary),
			Address:     e.Address,
			DisplayName: e.DisplayName,
		})
	}
	for _, p := range c.Phones {
		entry.Phones = append(entry.Phones, outPhone{
			Rel:     p.Relation,
			Primary: flag(p.Primary),
			Number:  p.Number,
		})
	}
	if c.Address != nil {
		entry.Address = postal(*c.Address, RelWork, true)
	}
	return entry
}

func postal(a contacts.Address, rel string, primary bool) *outPostal {
	return &outPostal{
		Rel:      rel,
		Primary:  flag(primary),
		City:     a.City,
		Street:   a.Street,
		Region:   a.Region,
		Postcode: a.Postcode,
		Country:  a.Country,
	}
}

func flag(primary bool) string {
	if primary {
		return primaryTrue
	}
	return ""
}

func marshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: encode document: %w", err)
	}
	return buf.Bytes(), nil
}
