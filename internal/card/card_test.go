package card_test

import (
	"math/rand/v2"
	"testing"

	"github.com/koopa0/durak/internal/card"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRankValue 測試點數階梯
func TestRankValue(t *testing.T) {
	tests := []struct {
		rank card.Rank
		want int
	}{
		{card.Six, 6},
		{card.Ten, 10},
		{card.Jack, 11},
		{card.Queen, 12},
		{card.King, 13},
		{card.Ace, 14},
		{card.Rank("2"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.rank), func(t *testing.T) {
			assert.Equal(t, tt.want, card.RankValue(tt.rank))
		})
	}
}

func TestCard_ValidAndNormalize(t *testing.T) {
	c := card.Card{Suit: card.Spades, Rank: card.Queen, Value: 99}
	assert.True(t, c.Valid())
	assert.Equal(t, 12, c.Normalize().Value)
	assert.True(t, c.Same(card.New(card.Spades, card.Queen)))

	assert.False(t, card.Card{Suit: "stars", Rank: card.Ace}.Valid())
	assert.False(t, card.Card{Suit: card.Hearts, Rank: "1"}.Valid())
}

// TestNewDeck 測試建立牌堆
func TestNewDeck(t *testing.T) {
	deck := card.NewDeck(rand.New(rand.NewPCG(1, 2)))
	require.Equal(t, card.DeckSize, deck.Len())

	seen := make(map[card.Card]bool)
	for _, c := range deck.Cards() {
		assert.False(t, seen[c], "重複的牌: %s", c)
		seen[c] = true
		assert.True(t, c.Valid())
		assert.Equal(t, card.RankValue(c.Rank), c.Value)
	}
	assert.Len(t, seen, 36)
}

func TestNewDeck_SeedDeterministic(t *testing.T) {
	a := card.NewDeck(rand.New(rand.NewPCG(7, 7))).Cards()
	b := card.NewDeck(rand.New(rand.NewPCG(7, 7))).Cards()
	c := card.NewDeck(rand.New(rand.NewPCG(8, 8))).Cards()

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

// TestShuffle_Uniform 粗略檢查洗牌分佈：3 張牌的 6 種排列都應出現且接近均勻
func TestShuffle_Uniform(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過分佈測試")
	}

	rng := rand.New(rand.NewPCG(42, 42))
	base := []card.Card{
		card.New(card.Hearts, card.Six),
		card.New(card.Hearts, card.Seven),
		card.New(card.Hearts, card.Eight),
	}

	const rounds = 60000
	counts := make(map[[3]card.Rank]int)
	for i := 0; i < rounds; i++ {
		cards := append([]card.Card(nil), base...)
		card.Shuffle(cards, rng)
		counts[[3]card.Rank{cards[0].Rank, cards[1].Rank, cards[2].Rank}]++
	}

	require.Len(t, counts, 6)
	for perm, n := range counts {
		assert.InDelta(t, rounds/6, n, rounds/6*0.1, "排列 %v 偏差過大", perm)
	}
}

func TestDeck_DrawAndBottom(t *testing.T) {
	bottom := card.New(card.Clubs, card.Ace)
	top := card.New(card.Hearts, card.Six)
	deck := card.NewDeckFrom([]card.Card{bottom, card.New(card.Spades, card.Nine), top})

	got, ok := deck.Bottom()
	require.True(t, ok)
	assert.Equal(t, bottom, got)

	got, ok = deck.Draw()
	require.True(t, ok)
	assert.Equal(t, top, got)
	assert.Equal(t, 2, deck.Len())

	deck.Draw()
	got, ok = deck.Draw()
	require.True(t, ok)
	assert.Equal(t, bottom, got)

	_, ok = deck.Draw()
	assert.False(t, ok)
	_, ok = deck.Bottom()
	assert.False(t, ok)
}
