package card

import "math/rand/v2"

// DeckSize 完整牌堆張數（4 花色 × 9 點數）
const DeckSize = 36

// Deck 牌堆
//
// 只從「頂端」（slice 末端）抽牌；另一端（index 0）是最後才會被抽到的牌，
// 發牌完成後用它決定王牌花色，但它仍留在牌堆裡。
type Deck struct {
	cards []Card
}

// NewDeck 建立一副洗好的 36 張牌
//
// rng 為 nil 時使用全域亂數源；測試可注入固定種子的 *rand.Rand。
func NewDeck(rng *rand.Rand) *Deck {
	cards := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for _, r := range Ranks {
			cards = append(cards, New(s, r))
		}
	}
	Shuffle(cards, rng)
	return &Deck{cards: cards}
}

// NewDeckFrom 以指定順序建立牌堆（最後一個元素為頂端），主要供測試使用
func NewDeckFrom(cards []Card) *Deck {
	out := make([]Card, len(cards))
	copy(out, cards)
	return &Deck{cards: out}
}

// Shuffle 原地洗牌（Fisher–Yates）
//
// 從最後一個位置往前，每次在 [0, i] 中均勻選一個位置交換，
// 在公平亂數源下每一種排列的機率相同。
func Shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Draw 從頂端抽一張牌，牌堆為空時回傳 false
func (d *Deck) Draw() (Card, bool) {
	n := len(d.cards)
	if n == 0 {
		return Card{}, false
	}
	c := d.cards[n-1]
	d.cards = d.cards[:n-1]
	return c, true
}

// Bottom 回傳最後才會被抽到的那張牌（不移除）
func (d *Deck) Bottom() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[0], true
}

// Len 剩餘張數
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards 回傳牌堆副本（index 0 為底牌）
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
