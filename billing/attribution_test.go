package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxia/clinic-engine/billing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func prac(id, name string, aliases ...string) billing.Practitioner {
	return billing.Practitioner{
		ID:      billing.PractitionerID(id),
		Name:    name,
		Aliases: aliases,
	}
}

// =============================================================================
// RESOLUTION TESTS
// =============================================================================

func TestAliasTable_ExplicitAlias(t *testing.T) {
	// GIVEN: A practitioner with an explicit alias "eli"
	// WHEN: Resolving a title carrying /eli/
	// THEN: The booking is attributed

	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Elisabeth Moreau", "eli"),
	})
	require.NoError(t, err)

	id, ok := table.Resolve("Patient A /eli/")
	assert.True(t, ok)
	assert.Equal(t, billing.PractitionerID("p1"), id)
}

func TestAliasTable_FirstNameFallback(t *testing.T) {
	// GIVEN: A practitioner with no explicit aliases
	// WHEN: Resolving a title carrying the first token of their name
	// THEN: The fallback attributes the booking

	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Elisabeth Moreau"),
	})
	require.NoError(t, err)

	id, ok := table.Resolve("Consultation /elisabeth/")
	assert.True(t, ok)
	assert.Equal(t, billing.PractitionerID("p1"), id)
}

func TestAliasTable_ExplicitWinsOverFallback(t *testing.T) {
	// GIVEN: p1 explicitly claims "marc" and p2's first name is Marc
	// WHEN: Resolving /marc/
	// THEN: The explicit claim wins

	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Sophie Laurent", "marc"),
		prac("p2", "Marc Dubois"),
	})
	require.NoError(t, err)

	id, ok := table.Resolve("Patient /marc/")
	assert.True(t, ok)
	assert.Equal(t, billing.PractitionerID("p1"), id)
}

func TestAliasTable_NormalizationFoldCaseAndDiacritics(t *testing.T) {
	// GIVEN: An alias with diacritics and mixed case in the registry
	// WHEN: Resolving titles with any casing or accent variation
	// THEN: The match is insensitive to both

	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Éli Rousseau", "Éli"),
	})
	require.NoError(t, err)

	for _, title := range []string{"A /eli/", "B /ELI/", "C /éli/", "D / Éli /"} {
		id, ok := table.Resolve(title)
		assert.True(t, ok, "title %q should resolve", title)
		assert.Equal(t, billing.PractitionerID("p1"), id)
	}
}

func TestAliasTable_FirstSlashTokenOnly(t *testing.T) {
	// GIVEN: A title with two slash tokens
	// WHEN: Resolving
	// THEN: Only the first token is honored

	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Anna K", "anna"),
		prac("p2", "Ben L", "ben"),
	})
	require.NoError(t, err)

	id, ok := table.Resolve("Patient /anna/ then /ben/")
	assert.True(t, ok)
	assert.Equal(t, billing.PractitionerID("p1"), id)
}

func TestAliasTable_NoTokenOrNoMatch(t *testing.T) {
	table, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Anna K", "anna"),
	})
	require.NoError(t, err)

	// No slash token at all.
	_, ok := table.Resolve("Patient appointment")
	assert.False(t, ok)

	// Unclosed token.
	_, ok = table.Resolve("Patient /anna")
	assert.False(t, ok)

	// Token matching nobody.
	_, ok = table.Resolve("Patient /zoe/")
	assert.False(t, ok)
}

// =============================================================================
// COLLISION TESTS
// =============================================================================

func TestNewAliasTable_ExplicitCollisionRejected(t *testing.T) {
	// GIVEN: Two practitioners claiming the same explicit alias
	// WHEN: Building the table
	// THEN: An AliasCollisionError surfaces, classified as configuration

	_, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Anna K", "ak"),
		prac("p2", "Alex K", "ak"),
	})

	require.Error(t, err)
	var collision *billing.AliasCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "ak", collision.Alias)
	assert.True(t, billing.IsConfiguration(err))
}

func TestNewAliasTable_FallbackCollisionRejected(t *testing.T) {
	// GIVEN: Two alias-less practitioners sharing a first name
	// WHEN: Building the table
	// THEN: The ambiguity is rejected at build time, not silently resolved

	_, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Marie Petit"),
		prac("p2", "Marie Grand"),
	})

	var collision *billing.AliasCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "marie", collision.Alias)
}

func TestNewAliasTable_ExplicitShadowingFallbackAllowed(t *testing.T) {
	// GIVEN: An explicit alias equal to another practitioner's fallback token
	// WHEN: Building the table
	// THEN: No error; precedence settles the conflict at lookup time

	_, err := billing.NewAliasTable([]billing.Practitioner{
		prac("p1", "Sophie Laurent", "marc"),
		prac("p2", "Marc Dubois"),
	})
	assert.NoError(t, err)
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "eli", billing.NormalizeAlias("  Éli "))
	assert.Equal(t, "francois", billing.NormalizeAlias("François"))
	assert.Equal(t, "anna", billing.NormalizeAlias("ANNA"))
	assert.Equal(t, "", billing.NormalizeAlias("   "))
}
