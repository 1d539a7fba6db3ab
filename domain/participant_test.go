package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_Parse(t *testing.T) {
	req := require.New(t)

	role, ok := ParseRole("CUSTOMER")
	req.True(ok)
	req.Equal(RoleCustomer, role)

	role, ok = ParseRole("SELLER")
	req.True(ok)
	req.Equal(RoleSeller, role)

	_, ok = ParseRole("ADMIN")
	req.False(ok)
}

func TestParticipant_Blocking(t *testing.T) {
	req := require.New(t)
	p := NewParticipant(RoleCustomer, "Camille", "camille@mail.fr", "hash", nil)

	req.False(p.HasBlocked("spam@mail.fr"))
	p.BlockPeer("spam@mail.fr")
	req.True(p.HasBlocked("spam@mail.fr"))
	req.Equal([]string{"spam@mail.fr"}, p.BlockedEmails())
}

func TestParticipant_Invisibility(t *testing.T) {
	req := require.New(t)
	p := NewParticipant(RoleCustomer, "Camille", "camille@mail.fr", "hash", nil)

	req.False(p.IsInvisibleTo("ex@mail.fr"))
	p.HideFromPeer("ex@mail.fr")
	req.True(p.IsInvisibleTo("ex@mail.fr"))
	req.Equal([]string{"ex@mail.fr"}, p.InvisibleTo())
}

func TestParticipant_BlockedPhrases(t *testing.T) {
	req := require.New(t)
	p := NewParticipant(RoleCustomer, "Camille", "camille@mail.fr", "hash", nil)

	t.Run("explicit replacement", func(t *testing.T) {
		p.AddBlockedPhrase("argent", "[censuré]")
		req.Equal("[censuré]", p.BlockedPhrases()["argent"])
	})

	t.Run("empty replacement masks with stars", func(t *testing.T) {
		p.AddBlockedPhrase("promo", "")
		req.Equal("*****", p.BlockedPhrases()["promo"])
	})

	t.Run("remove reports prior existence", func(t *testing.T) {
		req.True(p.RemoveBlockedPhrase("promo"))
		req.False(p.RemoveBlockedPhrase("promo"))
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap := p.BlockedPhrases()
		snap["volé"] = "x"
		req.NotContains(p.BlockedPhrases(), "volé")
	})
}

func TestParticipant_Stores(t *testing.T) {
	req := require.New(t)
	p := NewParticipant(RoleSeller, "Sylvie", "sylvie@shop.fr", "hash", nil)

	p.AddStore("Boulangerie")
	p.AddStore("Fromagerie")
	req.True(p.HasStore("Boulangerie"))
	req.Equal([]string{"Boulangerie", "Fromagerie"}, p.Stores())

	req.True(p.RemoveStore("Boulangerie"))
	req.False(p.RemoveStore("Boulangerie"))
	req.Equal([]string{"Fromagerie"}, p.Stores())
}

func TestMessage_Equal(t *testing.T) {
	req := require.New(t)
	a := RestoredMessage("a@mail.fr", "b@mail.fr", true, true, "salut", 1000)
	b := RestoredMessage("a@mail.fr", "b@mail.fr", true, true, "salut", 1000)

	req.True(a.Equal(b))

	b.Content = "autre"
	req.False(a.Equal(b))
	req.False(a.Equal(nil))

	// Parent is deliberately excluded from the comparison.
	c := RestoredMessage("a@mail.fr", "b@mail.fr", true, true, "salut", 1000)
	c.SetParent(NewConversation(
		NewParticipant(RoleSeller, "S", "s@shop.fr", "hash", nil),
		NewParticipant(RoleCustomer, "C", "c@mail.fr", "hash", nil),
		"", false))
	req.True(a.Equal(c))
}
