package codec

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactdir/internal/contacts"
)

func fullDraft() contacts.Draft {
	return contacts.Draft{
		FirstName:        "Grace",
		LastName:         "Hopper",
		Notes:            "Rear admiral",
		Email:            "grace@navy.example",
		DisplayName:      "Grace H.",
		Phone:            "+1 555 0100",
		AdditionalEmails: []string{"amazing.grace@home.example"},
		Address: &contacts.Address{
			Street:   "1 Compiler Way",
			City:     "Arlington",
			Region:   "VA",
			Postcode: "22201",
			Country:  "US",
		},
	}
}

func TestEncodeDraftEnvelope(t *testing.T) {
	out, err := EncodeDraft(fullDraft())
	require.NoError(t, err)
	doc := string(out)

	assert.True(t, strings.HasPrefix(doc, xml.Header), "document starts with an XML declaration")
	assert.Contains(t, doc, `<atom:entry xmlns:atom="http://www.w3.org/2005/Atom" xmlns:gd="http://schemas.google.com/g/2005">`)
	assert.Contains(t, doc, `<atom:category scheme="http://schemas.google.com/g/2005#kind" term="http://schemas.google.com/contact/2008#contact">`)
	assert.Contains(t, doc, `<gd:givenName>Grace</gd:givenName>`)
	assert.Contains(t, doc, `<gd:familyName>Hopper</gd:familyName>`)
	assert.Contains(t, doc, `<gd:fullName>Grace Hopper</gd:fullName>`)
	assert.Contains(t, doc, `<atom:content type="text">Rear admiral</atom:content>`)
	assert.Contains(t, doc, `<gd:email rel="http://schemas.google.com/g/2005#work" primary="true" address="grace@navy.example" displayName="Grace H.">`)
	assert.Contains(t, doc, `<gd:email rel="http://schemas.google.com/g/2005#home" address="amazing.grace@home.example">`)
	assert.Contains(t, doc, `<gd:phoneNumber rel="http://schemas.google.com/g/2005#work" primary="true">+1 555 0100</gd:phoneNumber>`)
	assert.Contains(t, doc, `<gd:structuredPostalAddress rel="http://schemas.google.com/g/2005#work" primary="true">`)
	assert.NotContains(t, doc, "atom:id", "drafts carry no id")
	assert.NotContains(t, doc, "atom:link", "drafts carry no edit link")
}

func TestEncodeDraftOptionalFields(t *testing.T) {
	t.Run("no phone and no address emit nothing", func(t *testing.T) {
		out, err := EncodeDraft(contacts.Draft{FirstName: "Ada"})
		require.NoError(t, err)
		assert.NotContains(t, string(out), "gd:phoneNumber")
		assert.NotContains(t, string(out), "gd:structuredPostalAddress")
	})

	t.Run("empty address object still emits all sub-elements", func(t *testing.T) {
		out, err := EncodeDraft(contacts.Draft{Address: &contacts.Address{City: "Oslo"}})
		require.NoError(t, err)
		doc := string(out)
		assert.Contains(t, doc, "<gd:city>Oslo</gd:city>")
		assert.Contains(t, doc, "<gd:street></gd:street>")
		assert.Contains(t, doc, "<gd:country></gd:country>")
	})

	t.Run("display name falls back to the email", func(t *testing.T) {
		out, err := EncodeDraft(contacts.Draft{Email: "x@y.example"})
		require.NoError(t, err)
		assert.Contains(t, string(out), `address="x@y.example" displayName="x@y.example"`)
	})

	t.Run("full name override", func(t *testing.T) {
		out, err := EncodeDraft(contacts.Draft{FirstName: "Al", LastName: "Turing", FullName: "Alan Mathison Turing"})
		require.NoError(t, err)
		assert.Contains(t, string(out), "<gd:fullName>Alan Mathison Turing</gd:fullName>")
	})
}

// Additional emails without a primary address still produce the primary
// element, with an empty address.
func TestEncodeDraftAdditionalEmailsOnly(t *testing.T) {
	out, err := EncodeDraft(contacts.Draft{AdditionalEmails: []string{"a@x.com", "b@x.com"}})
	require.NoError(t, err)

	decoded, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, decoded.Emails, 3)

	assert.Equal(t, contacts.Email{Address: "", Primary: true, Relation: RelWork}, decoded.Emails[0])
	assert.Equal(t, contacts.Email{Address: "a@x.com", Primary: false, Relation: RelHome}, decoded.Emails[1])
	assert.Equal(t, contacts.Email{Address: "b@x.com", Primary: false, Relation: RelHome}, decoded.Emails[2])
}

func TestEncodeDraftEscapesMarkup(t *testing.T) {
	d := contacts.Draft{
		FirstName: "Tom & Jerry",
		Notes:     "<script>alert('x')</script>",
		Email:     `o'neil"@x.example`,
	}
	out, err := EncodeDraft(d)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")

	decoded, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, d.FirstName, decoded.FirstName)
	assert.Equal(t, d.Notes, decoded.Notes)
	assert.Equal(t, d.Email, decoded.PrimaryEmail())
}

func TestDraftRoundTrip(t *testing.T) {
	d := fullDraft()
	out, err := EncodeDraft(d)
	require.NoError(t, err)

	c, err := Decode(out)
	require.NoError(t, err)

	assert.Equal(t, d.FirstName, c.FirstName)
	assert.Equal(t, d.LastName, c.LastName)
	assert.Equal(t, "Grace Hopper", c.FullName)
	assert.Equal(t, d.Notes, c.Notes)
	assert.Equal(t, d.Email, c.PrimaryEmail())
	require.Len(t, c.Phones, 1)
	assert.Equal(t, contacts.Phone{Number: d.Phone, Primary: true, Relation: RelWork}, c.Phones[0])
	require.NotNil(t, c.Address)
	assert.Equal(t, *d.Address, *c.Address)
	assert.Empty(t, c.ID)
	assert.Empty(t, c.EditURL)
}

func TestContactRoundTrip(t *testing.T) {
	c := contacts.Contact{
		ID:        "http://www.google.com/m8/feeds/contacts/example.com/base/abc",
		EditURL:   "https://www.google.com/m8/feeds/contacts/example.com/full/abc",
		FirstName: "Linus",
		LastName:  "Torvalds",
		FullName:  "Linus Torvalds",
		Notes:     "kernel",
		Emails: []contacts.Email{
			{Address: "linus@example.com", Primary: true, Relation: RelWork},
			{Address: "l@home.example", Relation: RelHome},
		},
		Phones: []contacts.Phone{
			{Number: "1", Primary: true, Relation: RelWork},
			{Number: "2", Relation: RelHome},
		},
	}
	out, err := EncodeContact(c)
	require.NoError(t, err)

	got, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestEncodeFeedPage(t *testing.T) {
	page := FeedPage{
		Contacts:     []contacts.Contact{{ID: "1", FirstName: "A"}, {ID: "2", FirstName: "B"}},
		Next:         "https://example.com/feed?start-index=3",
		TotalResults: 7,
	}
	out, err := EncodeFeedPage(page)
	require.NoError(t, err)

	got, err := DecodeFeedPage(out)
	require.NoError(t, err)
	assert.Equal(t, page.Next, got.Next)
	assert.Equal(t, 7, got.TotalResults)
	require.Len(t, got.Contacts, 2)
	assert.Equal(t, "1", got.Contacts[0].ID)
	assert.Equal(t, "B", got.Contacts[1].FirstName)
}
