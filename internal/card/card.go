// Package card 定義 Durak 使用的 36 張牌模型：花色、點數、牌值與牌堆
package card

import "fmt"

// Suit 花色
type Suit string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
)

// Rank 點數
type Rank string

const (
	Six   Rank = "6"
	Seven Rank = "7"
	Eight Rank = "8"
	Nine  Rank = "9"
	Ten   Rank = "10"
	Jack  Rank = "J"
	Queen Rank = "Q"
	King  Rank = "K"
	Ace   Rank = "A"
)

// Suits 所有花色（建牌順序）
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Ranks 點數階梯，由小到大
var Ranks = []Rank{Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// rankValues 點數 → 牌值（6..14）
var rankValues = map[Rank]int{
	Six: 6, Seven: 7, Eight: 8, Nine: 9, Ten: 10,
	Jack: 11, Queen: 12, King: 13, Ace: 14,
}

// Card 一張牌（值類型，建立後不可變）
//
// 牌的身分由 (Suit, Rank) 決定；Value 是由 Rank 推導出來的牌值，
// 客戶端送來的 Value 一律忽略，透過 New 重新計算。
type Card struct {
	Suit  Suit `json:"suit"`
	Rank  Rank `json:"rank"`
	Value int  `json:"value"`
}

// New 建立一張牌
func New(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank, Value: rankValues[rank]}
}

// RankValue 回傳點數在階梯上的牌值，未知點數回傳 0
func RankValue(r Rank) int {
	return rankValues[r]
}

// Valid 檢查花色與點數是否合法
func (c Card) Valid() bool {
	return validSuit(c.Suit) && rankValues[c.Rank] != 0
}

// Normalize 以 (Suit, Rank) 重建牌，修正外部傳入的 Value
func (c Card) Normalize() Card {
	return New(c.Suit, c.Rank)
}

// Same 比較兩張牌是否為同一張（只看花色與點數）
func (c Card) Same(other Card) bool {
	return c.Suit == other.Suit && c.Rank == other.Rank
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

func validSuit(s Suit) bool {
	for _, suit := range Suits {
		if suit == s {
			return true
		}
	}
	return false
}
