package patient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999998888", NormalizePhone("+55 (11) 99999-8888"))
	assert.Equal(t, "5511999998888", NormalizePhone("5511999998888"))
	assert.Equal(t, "", NormalizePhone("abc"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "joão pedro", NormalizeName("  João   Pedro "))
	assert.Equal(t, "maria", NormalizeName("MARIA"))
}

func TestContactPhoneLegacyFallback(t *testing.T) {
	assert.Equal(t, "5511988887777", ContactPhone(&Patient{Phone: "5511988887777"}))
	assert.Equal(t, "5511900001111", ContactPhone(&Patient{Phone: "5511988887777", ContactPhone: "5511900001111"}))
}

func TestResolveForContactCreatesNewPatient(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	p, err := resolver.ResolveForContact(ctx, "Maria Silva", "5511999998888", "")
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", p.Name)
	assert.Equal(t, "5511999998888", p.ContactPhone)
	assert.NotZero(t, p.ID)
}

func TestResolveForContactMatchesByName(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	first, err := resolver.ResolveForContact(ctx, "Maria Silva", "5511999998888", "")
	require.NoError(t, err)

	again, err := resolver.ResolveForContact(ctx, "  maria  SILVA ", "5511999998888", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestResolveForContactSeparatesSiblings(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	// Two children booked from the same guardian phone stay distinct rows.
	child1, err := resolver.ResolveForContact(ctx, "Ana Souza", "5511999998888", "Carla Souza")
	require.NoError(t, err)
	child2, err := resolver.ResolveForContact(ctx, "Beto Souza", "5511999998888", "Carla Souza")
	require.NoError(t, err)

	assert.NotEqual(t, child1.ID, child2.ID)

	all, err := resolver.FindByContactPhone(ctx, "5511999998888")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResolveForContactBackfillsContactPhone(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	// Legacy row without contact_phone.
	legacy, err := repo.Create(ctx, &Patient{Name: "José Lima", Phone: "5511977776666"})
	require.NoError(t, err)
	require.Empty(t, legacy.ContactPhone)

	resolved, err := resolver.ResolveForContact(ctx, "José Lima", "5511977776666", "")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, resolved.ID)
	assert.Equal(t, "5511977776666", resolved.ContactPhone)

	stored, err := repo.GetByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "5511977776666", stored.ContactPhone)
}

func TestResolveForContactUpdatesResponsible(t *testing.T) {
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	p, err := resolver.ResolveForContact(ctx, "Ana Souza", "5511999998888", "")
	require.NoError(t, err)
	require.Empty(t, p.ResponsibleName)

	updated, err := resolver.ResolveForContact(ctx, "Ana Souza", "5511999998888", "Carla Souza")
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "Carla Souza", updated.ResponsibleName)
}
