package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"contactdir/internal/contacts"
)

type wireText struct {
	Text string `xml:",chardata"`
}

type wireLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type wireName struct {
	GivenName  *wireText `xml:"http://schemas.google.com/g/2005 givenName"`
	FamilyName *wireText `xml:"http://schemas.google.com/g/2005 familyName"`
	FullName   *wireText `xml:"http://schemas.google.com/g/2005 fullName"`
}

type wireEmail struct {
	Address     string `xml:"address,attr"`
	Primary     string `xml:"primary,attr"`
	Rel         string `xml:"rel,attr"`
	DisplayName string `xml:"displayName,attr"`
}

type wirePhone struct {
	Number  string `xml:",chardata"`
	Primary string `xml:"primary,attr"`
	Rel     string `xml:"rel,attr"`
}

type wirePostal struct {
	Street   *wireText `xml:"http://schemas.google.com/g/2005 street"`
	City     *wireText `xml:"http://schemas.google.com/g/2005 city"`
	Region   *wireText `xml:"http://schemas.google.com/g/2005 region"`
	Postcode *wireText `xml:"http://schemas.google.com/g/2005 postcode"`
	Country  *wireText `xml:"http://schemas.google.com/g/2005 country"`
}

type wireEntry struct {
	XMLName   xml.Name     `xml:"http://www.w3.org/2005/Atom entry"`
	ID        *wireText    `xml:"http://www.w3.org/2005/Atom id"`
	Content   *wireText    `xml:"http://www.w3.org/2005/Atom content"`
	Links     []wireLink   `xml:"http://www.w3.org/2005/Atom link"`
	Name      *wireName    `xml:"http://schemas.google.com/g/2005 name"`
	Emails    []wireEmail  `xml:"http://schemas.google.com/g/2005 email"`
	Phones    []wirePhone  `xml:"http://schemas.google.com/g/2005 phoneNumber"`
	Addresses []wirePostal `xml:"http://schemas.google.com/g/2005 structuredPostalAddress"`
}

// FeedPage is one decoded page of the contacts feed.
type FeedPage struct {
	Contacts     []contacts.Contact
	Next         string // href of the rel="next" link, empty on the last page
	TotalResults int
}

// Decode parses a single entry document. Missing elements default to empty
// values; a document that is not well-formed, or whose root is not an Atom
// entry, yields a *DecodeError.
func Decode(data []byte) (contacts.Contact, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var entry wireEntry
	if err := dec.Decode(&entry); err != nil {
		if errors.Is(err, io.EOF) {
			return contacts.Contact{}, newDecodeError("empty document", -1, data, err)
		}
		return contacts.Contact{}, newDecodeError("invalid entry document", -1, data, err)
	}
	if err := expectEnd(dec); err != nil {
		return contacts.Contact{}, newDecodeError("invalid entry document", -1, data, err)
	}
	return entry.contact(), nil
}

// DecodeFeed parses a feed document and decodes every entry in document order.
// The first entry that fails aborts the whole feed.
func DecodeFeed(data []byte) ([]contacts.Contact, error) {
	page, err := DecodeFeedPage(data)
	if err != nil {
		return nil, err
	}
	return page.Contacts, nil
}

// DecodeFeedPage is DecodeFeed plus the paging metadata carried by the feed.
func DecodeFeedPage(data []byte) (FeedPage, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := rootElement(dec)
	if err != nil {
		return FeedPage{}, newDecodeError("invalid feed document", -1, data, err)
	}
	if root.Name.Space != NamespaceAtom || root.Name.Local != "feed" {
		return FeedPage{}, newDecodeError("root element is not an atom feed", -1, data, nil)
	}

	page := FeedPage{Contacts: []contacts.Contact{}}
	index := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return FeedPage{}, newDecodeError("invalid feed document", -1, data, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == NamespaceAtom && t.Name.Local == "entry":
				var entry wireEntry
				if err := dec.DecodeElement(&entry, &t); err != nil {
					return FeedPage{}, newDecodeError("invalid entry", index, data, err)
				}
				page.Contacts = append(page.Contacts, entry.contact())
				index++
			case t.Name.Space == NamespaceAtom && t.Name.Local == "link":
				var link wireLink
				if err := dec.DecodeElement(&link, &t); err != nil {
					return FeedPage{}, newDecodeError("invalid feed link", -1, data, err)
				}
				if link.Rel == linkRelNext {
					page.Next = link.Href
				}
			case t.Name.Space == NamespaceOpenSearch && t.Name.Local == "totalResults":
				var total wireText
				if err := dec.DecodeElement(&total, &t); err != nil {
					return FeedPage{}, newDecodeError("invalid feed metadata", -1, data, err)
				}
				if n, err := strconv.Atoi(strings.TrimSpace(total.Text)); err == nil {
					page.TotalResults = n
				}
			default:
				if err := dec.Skip(); err != nil {
					return FeedPage{}, newDecodeError("invalid feed document", -1, data, err)
				}
			}
		case xml.EndElement:
			if err := expectEnd(dec); err != nil {
				return FeedPage{}, newDecodeError("invalid feed document", -1, data, err)
			}
			return page, nil
		}
	}
}

func (e wireEntry) contact() contacts.Contact {
	c := contacts.Contact{
		ID:      text(e.ID),
		Notes:   text(e.Content),
		Emails:  make([]contacts.Email, 0, len(e.Emails)),
		Phones:  make([]contacts.Phone, 0, len(e.Phones)),
		EditURL: editURL(e.Links),
	}
	if e.Name != nil {
		c.FirstName = text(e.Name.GivenName)
		c.LastName = text(e.Name.FamilyName)
		c.FullName = text(e.Name.FullName)
	}
	if c.FullName == "" {
		c.FullName = contacts.JoinName(c.FirstName, c.LastName)
	}
	for _, em := range e.Emails {
		c.Emails = append(c.Emails, contacts.Email{
			Address:     em.Address,
			Primary:     em.Primary == primaryTrue,
			Relation:    em.Rel,
			DisplayName: em.DisplayName,
		})
	}
	for _, ph := range e.Phones {
		c.Phones = append(c.Phones, contacts.Phone{
			Number:   ph.Number,
			Primary:  ph.Primary == primaryTrue,
			Relation: ph.Rel,
		})
	}
	if len(e.Addresses) > 0 {
		a := e.Addresses[0]
		c.Address = &contacts.Address{
			Street:   text(a.Street),
			City:     text(a.City),
			Region:   text(a.Region),
			Postcode: text(a.Postcode),
			Country:  text(a.Country),
		}
	}
	return c
}

func editURL(links []wireLink) string {
	for _, l := range links {
		if l.Rel == linkRelEdit {
			return l.Href
		}
	}
	return ""
}

func text(t *wireText) string {
	if t == nil {
		return ""
	}
	return t.Text
}

// rootElement advances past the prolog and returns the document element.
func rootElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return xml.StartElement{}, errors.New("text before root element")
			}
		case xml.EndElement:
			return xml.StartElement{}, errors.New("unexpected end element")
		}
	}
}

// expectEnd verifies nothing but whitespace, comments, and processing
// instructions follow the document element.
func expectEnd(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("text after root element")
			}
		case xml.StartElement:
			return errors.New("multiple root elements")
		}
	}
}
